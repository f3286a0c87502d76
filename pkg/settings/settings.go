// Package settings holds the user-tunable knobs that shape one create or
// extract run: image/video codec parameters, catalog/dedup toggles, and
// staging location.
package settings

// Settings configures an archive-creation run.
type Settings struct {
	BpgQuality          int
	BpgLossless         bool
	BpgBitDepth         int
	BpgChromaFormat     int
	BpgEncoderType      int
	BpgCompressionLevel int

	VideoPreset int
	VideoCRF    int

	CompressionLevel int

	EnableCatalog bool
	EnableDedup   bool

	SkipAlreadyCompressedVideos bool

	// StagingDir overrides the system temp directory for intermediate work.
	StagingDir string

	HeicQuality uint8
	JpegQuality uint8
}

// Default returns the standard settings for a new run.
func Default() Settings {
	return Settings{
		BpgQuality:                  25,
		BpgLossless:                 false,
		BpgBitDepth:                 8,
		BpgChromaFormat:             1,
		BpgEncoderType:              0,
		BpgCompressionLevel:         8,
		VideoPreset:                 0,
		VideoCRF:                    23,
		CompressionLevel:            22,
		EnableCatalog:               true,
		EnableDedup:                 true,
		SkipAlreadyCompressedVideos: true,
		StagingDir:                  "",
		HeicQuality:                 90,
		JpegQuality:                 92,
	}
}

// ExtractionSettings configures an extract run's per-format image decoding.
type ExtractionSettings struct {
	DecodeImages bool
	HeicQuality  uint8
	JpegQuality  uint8
}

func DefaultExtraction() ExtractionSettings {
	return ExtractionSettings{DecodeImages: true, HeicQuality: 90, JpegQuality: 92}
}
