package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateDecoding(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTools() error {
	if c.Tools.TimeoutSeconds < 0 {
		return errors.New("tools.timeout_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	switch c.Encoding.Codec {
	case "alac", "aac":
	default:
		return fmt.Errorf("encoding.codec: unsupported value %q (want alac or aac)", c.Encoding.Codec)
	}
	if c.Encoding.Workers < 1 {
		return errors.New("encoding.workers must be positive")
	}
	return nil
}

func (c *Config) validateDecoding() error {
	switch c.Decoding.PCMFormat {
	case "f32le", "f64le", "s16le":
	default:
		return fmt.Errorf("decoding.pcm_format: unsupported value %q", c.Decoding.PCMFormat)
	}
	switch c.Decoding.OutputFormat {
	case "wav", "aiff", "flac", "m4a":
	default:
		return fmt.Errorf("decoding.output_format: unsupported value %q", c.Decoding.OutputFormat)
	}
	if c.Decoding.Workers < 1 {
		return errors.New("decoding.workers must be positive")
	}
	if c.Decoding.ChannelsPerStem < 1 {
		return errors.New("decoding.channels_per_stem must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
