package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/avast/apkchannel"
	"github.com/avast/apkchannel/signingblock"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "apkchannel"
	app.Usage = "embed and read distribution channel tags in v2-signed APKs"
	app.Commands = []*cli.Command{
		{
			Name:  "write",
			Usage: "generate one channel-tagged APK per channel",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "source-apk",
					Usage:    "path to the v2-signed source APK",
					Required: true,
				},
				&cli.StringSliceFlag{
					Name:  "channel",
					Usage: "channel to embed, repeatable",
				},
				&cli.StringFlag{
					Name:  "channels-file",
					Usage: "file with one channel per line, # starts a comment",
				},
				&cli.StringFlag{
					Name:  "target-dir",
					Usage: "directory the output APKs are written to",
					Value: ".",
				},
				&cli.StringFlag{
					Name:  "format",
					Usage: "output file name pattern with one %s placeholder",
					Value: "app-%s.apk",
				},
				&cli.BoolFlag{
					Name:  "bundle",
					Usage: "embed all channels into a single output APK",
				},
				&cli.StringFlag{
					Name:  "output",
					Usage: "output path for --bundle",
				},
			},
			Action: runWrite,
		},
		{
			Name:  "read",
			Usage: "print the channel(s) embedded in an APK",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "source-apk",
					Required: true,
				},
			},
			Action: runRead,
		},
		{
			Name:  "batch",
			Usage: "run a channel generation described by a TOML config",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "config",
					Usage:    "path to the TOML batch config",
					Required: true,
				},
			},
			Action: runBatch,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		if signingblock.IsNotFoundError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runWrite(c *cli.Context) error {
	channels := c.StringSlice("channel")
	if path := c.String("channels-file"); path != "" {
		fromFile, err := apkchannel.LoadChannelList(path)
		if err != nil {
			return fmt.Errorf("failed to read channels file: %w", err)
		}
		channels = append(channels, fromFile...)
	}
	if len(channels) == 0 {
		return errors.New("no channels given, use --channel or --channels-file")
	}

	opts := &apkchannel.Options{
		TargetDir: c.String("target-dir"),
		Format:    c.String("format"),
	}

	if c.Bool("bundle") {
		output := c.String("output")
		if output == "" {
			return errors.New("--bundle requires --output")
		}
		return writeBundle(c.String("source-apk"), output, channels, opts)
	}
	return writeChannels(c.String("source-apk"), channels, opts)
}

func runRead(c *cli.Context) error {
	channels, err := apkchannel.ReadChannels(c.String("source-apk"), signingblock.ChannelId)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		fmt.Println("not present")
		return nil
	}
	for _, channel := range channels {
		fmt.Println(channel)
	}
	return nil
}

func runBatch(c *cli.Context) error {
	cfg, err := apkchannel.LoadBatchConfig(c.String("config"))
	if err != nil {
		return err
	}

	channels, err := cfg.ChannelList()
	if err != nil {
		return err
	}

	opts := &apkchannel.Options{
		TargetDir: cfg.TargetDir,
		Format:    cfg.Format,
	}

	if cfg.Bundle {
		if cfg.Output == "" {
			return errors.New("bundle = true requires output")
		}
		return writeBundle(cfg.SourceApk, cfg.Output, channels, opts)
	}
	return writeChannels(cfg.SourceApk, channels, opts)
}

func writeChannels(sourceApk string, channels []string, opts *apkchannel.Options) error {
	written, err := apkchannel.WriteChannels(sourceApk, channels, opts)
	for _, path := range written {
		log.Info("generated channel apk", "path", path)
	}
	if err != nil {
		return err
	}
	log.Info("done", "apks", len(written))
	return nil
}

func writeBundle(sourceApk, output string, channels []string, opts *apkchannel.Options) error {
	if err := apkchannel.WriteBundle(sourceApk, output, channels, opts); err != nil {
		return err
	}
	log.Info("generated bundle apk", "path", output, "channels", len(channels))
	return nil
}
