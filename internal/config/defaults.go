package config

const (
	defaultVideoDir     = "input/video"
	defaultAudioDir     = "input/audio"
	defaultProcessedDir = "input/video/processed"
	defaultOutDir       = "output"
	defaultWorkDir      = "temp"
	defaultLedger       = "automv.db"

	defaultFFmpeg  = "ffmpeg"
	defaultFFprobe = "ffprobe"
	defaultAubio   = "aubio"

	defaultExtractWorkers     = 4
	defaultStageTimeoutSecond = 600
	defaultStaleWorkDirHours  = 24
	defaultBatchWorkers       = 1

	defaultSegmentPreset = "ultrafast"
	defaultMuxPreset     = "fast"
	defaultMuxCRF        = 22
	defaultAudioBitrate  = "192k"

	defaultAPIBind   = "127.0.0.1:7490"
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
)

// Default returns a Config populated with repository defaults. Directory
// values are relative to the process working directory.
func Default() Config {
	return Config{
		Paths: Paths{
			VideoDir:     defaultVideoDir,
			AudioDir:     defaultAudioDir,
			ProcessedDir: defaultProcessedDir,
			OutDir:       defaultOutDir,
			WorkDir:      defaultWorkDir,
			Ledger:       defaultLedger,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			FFprobe: defaultFFprobe,
			Aubio:   defaultAubio,
		},
		Job: Job{
			ExtractWorkers:      defaultExtractWorkers,
			StageTimeoutSeconds: defaultStageTimeoutSecond,
			StaleWorkDirHours:   defaultStaleWorkDirHours,
		},
		Batch: Batch{
			Workers: defaultBatchWorkers,
		},
		Encoding: Encoding{
			SegmentPreset: defaultSegmentPreset,
			MuxPreset:     defaultMuxPreset,
			MuxCRF:        defaultMuxCRF,
			AudioBitrate:  defaultAudioBitrate,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
