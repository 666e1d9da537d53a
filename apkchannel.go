// Package apkchannel embeds distribution channel tags into APKs signed with
// APK Signature Scheme v2 and reads them back. The tag travels as an extra
// ID-value pair of the APK Signing Block, a region the v2 verifier does not
// digest, so the signature stays valid and no entry needs re-signing.
package apkchannel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avast/apkchannel/signingblock"
	"github.com/avast/apkparser"
)

const defaultFormat = "app-%s.apk"

// Options control the output of WriteChannels and WriteBundle. The zero
// value writes app-<channel>.apk files into the current directory using the
// default channel pair ID.
type Options struct {
	// TargetDir is the directory output files are placed into.
	TargetDir string
	// Format is the output file name pattern with a single %s placeholder
	// that receives the channel.
	Format string
	// Id overrides the pair ID carrying the channel value. Defaults to
	// signingblock.ChannelId.
	Id uint32
	// SkipZipCheck disables the ZIP archive sanity check.
	SkipZipCheck bool
}

func (o *Options) fill() (Options, error) {
	var res Options
	if o != nil {
		res = *o
	}
	if res.TargetDir == "" {
		res.TargetDir = "."
	}
	if res.Format == "" {
		res.Format = defaultFormat
	}
	if res.Id == 0 {
		res.Id = signingblock.ChannelId
	}
	if strings.Count(res.Format, "%s") != 1 || strings.Count(strings.ReplaceAll(res.Format, "%s", ""), "%") != 0 {
		return res, fmt.Errorf("format must contain exactly one %%s placeholder: %q", res.Format)
	}
	return res, nil
}

// WriteChannels produces one APK per channel, each a copy of sourceApk with
// the channel embedded in its signing block. Every output is re-read after
// writing to make sure the embedded value survived the trip. A failure on
// one channel does not stop the remaining ones; the returned error
// aggregates everything that went wrong, written lists the outputs that
// were produced.
func WriteChannels(sourceApk string, channels []string, o *Options) (written []string, err error) {
	opts, err := o.fill()
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, errors.New("no channels specified")
	}

	apk, err := loadApk(sourceApk, &opts)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, channel := range channels {
		path := filepath.Join(opts.TargetDir, fmt.Sprintf(opts.Format, channel))
		if err := writeOne(apk, []string{channel}, path, opts.Id); err != nil {
			errs = append(errs, fmt.Errorf("channel %q: %w", channel, err))
			continue
		}
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}

// WriteBundle embeds all channels into a single output APK as one
// multi-channel pair.
func WriteBundle(sourceApk, outputPath string, channels []string, o *Options) error {
	opts, err := o.fill()
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return errors.New("no channels specified")
	}

	apk, err := loadApk(sourceApk, &opts)
	if err != nil {
		return err
	}
	return writeOne(apk, channels, outputPath, opts.Id)
}

func loadApk(path string, opts *Options) (*signingblock.Apk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// The signing block check runs first: a plain ZIP without one must be
	// reported as not-v2-signed no matter what else it contains.
	apk, err := signingblock.Parse(data)
	if err != nil {
		return nil, err
	}

	if !opts.SkipZipCheck {
		if err := checkSourceZip(path); err != nil {
			return nil, err
		}
	}
	return apk, nil
}

func writeOne(apk *signingblock.Apk, channels []string, path string, id uint32) error {
	value, err := signingblock.EncodeChannels(channels)
	if err != nil {
		return err
	}

	block, err := apk.Block.WithPair(id, value)
	if err != nil {
		return err
	}

	if err := apk.WriteApk(path, block); err != nil {
		return err
	}

	got, err := ReadChannels(path, id)
	if err != nil {
		return fmt.Errorf("verification of %s failed: %w", path, err)
	}
	if len(got) != len(channels) {
		return fmt.Errorf("verification of %s failed: %d channels embedded, expected %d", path, len(got), len(channels))
	}
	for i := range got {
		if got[i] != channels[i] {
			return fmt.Errorf("verification of %s failed: embedded %q, expected %q", path, got[i], channels[i])
		}
	}
	return nil
}

// ReadChannels decodes the channels embedded in the APK at path under the
// pair id. It returns nil without an error when the signing block carries
// no such pair.
func ReadChannels(path string, id uint32) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	apk, err := signingblock.Parse(data)
	if err != nil {
		return nil, err
	}

	value, prs := apk.Block.Value(id)
	if !prs {
		return nil, nil
	}
	return signingblock.DecodeChannels(value)
}

// ReadChannel is the single-channel convenience form of ReadChannels with
// the default pair ID. It returns "" when no channel is embedded.
func ReadChannel(path string) (string, error) {
	channels, err := ReadChannels(path, signingblock.ChannelId)
	if err != nil || len(channels) == 0 {
		return "", err
	}
	return channels[0], nil
}

// checkSourceZip rejects inputs that are not APK-shaped, so a signed ZIP
// that is not actually an application package gets a clear message.
func checkSourceZip(path string) error {
	zip, err := apkparser.OpenZip(path)
	if err != nil {
		return fmt.Errorf("failed to open %s as a ZIP archive: %w", path, err)
	}
	defer zip.Close()

	if _, prs := zip.File["AndroidManifest.xml"]; !prs {
		return fmt.Errorf("%s contains no AndroidManifest.xml, not an APK", path)
	}
	return nil
}
