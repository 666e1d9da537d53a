package apkchannel

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LoadChannelList reads a channel list file: one channel per line, blank
// lines and lines starting with # are skipped.
func LoadChannelList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var channels []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		channels = append(channels, line)
	}
	return channels, nil
}

// BatchConfig is the TOML description of a channel generation run, an
// alternative to spelling everything out as CLI flags.
type BatchConfig struct {
	SourceApk    string   `toml:"source_apk"`
	TargetDir    string   `toml:"target_dir"`
	Format       string   `toml:"format"`
	Channels     []string `toml:"channels"`
	ChannelsFile string   `toml:"channels_file"`
	Bundle       bool     `toml:"bundle"`
	Output       string   `toml:"output"`
}

func LoadBatchConfig(path string) (*BatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c BatchConfig
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if c.SourceApk == "" {
		return nil, fmt.Errorf("%s: source_apk is required", path)
	}
	return &c, nil
}

// ChannelList resolves the channels of the run, merging the inline list
// with the referenced channel list file.
func (c *BatchConfig) ChannelList() ([]string, error) {
	channels := append([]string(nil), c.Channels...)
	if c.ChannelsFile != "" {
		fromFile, err := LoadChannelList(c.ChannelsFile)
		if err != nil {
			return nil, err
		}
		channels = append(channels, fromFile...)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}
	return channels, nil
}
