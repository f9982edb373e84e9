package config

const (
	defaultConfigPath      = "~/.config/stemforge/config.toml"
	defaultFFmpegBinary    = "ffmpeg"
	defaultFFprobeBinary   = "ffprobe"
	defaultMP4BoxBinary    = "MP4Box"
	defaultCodec           = "alac"
	defaultAACBitrate      = "256k"
	defaultWorkers         = 4
	defaultPCMFormat       = "f32le"
	defaultOutputFormat    = "wav"
	defaultChannelsPerStem = 2
	defaultLogDir          = "~/.local/share/stemforge/logs"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
			MP4Box:  defaultMP4BoxBinary,
		},
		Encoding: Encoding{
			Codec:      defaultCodec,
			AACBitrate: defaultAACBitrate,
			Workers:    defaultWorkers,
			LockOutput: true,
			SplitLarge: true,
		},
		Decoding: Decoding{
			PCMFormat:       defaultPCMFormat,
			Workers:         defaultWorkers,
			OutputFormat:    defaultOutputFormat,
			ChannelsPerStem: defaultChannelsPerStem,
		},
		Paths: Paths{
			WorkDir: defaultWorkDir(),
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
