package settings

import (
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FileSettings is the YAML document read by File.
//
//	tileCachingDuration: 3600
//	tileServers:
//	  - name: cartodb-voyager
//	    url: https://{a-c}.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}.png
type FileSettings struct {
	TileCachingDuration *int64       `yaml:"tileCachingDuration"`
	TileServers         []TileServer `yaml:"tileServers"`
}

// File is a Provider backed by a YAML file which is read again on every call,
// so that edits are picked up by the next request.
// Read errors are logged and behave like empty settings.
type File struct {
	Path string
	Log  zerolog.Logger
}

// NewFile creates a file-backed provider.
func NewFile(path string, logger zerolog.Logger) *File {
	return &File{Path: path, Log: logger.With().Str("settings", path).Logger()}
}

// Load reads and parses the settings file.
func (f *File) Load() (FileSettings, error) {
	var fs FileSettings
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return fs, err
	}
	err = yaml.Unmarshal(b, &fs)
	return fs, err
}

func (f *File) TileCachingDuration() (int64, bool) {
	fs, err := f.Load()
	if err != nil {
		f.Log.Warn().Err(err).Msg("Could not read settings")
		return DefaultTileCachingDuration, false
	}
	if fs.TileCachingDuration == nil {
		return DefaultTileCachingDuration, false
	}
	return *fs.TileCachingDuration, true
}

func (f *File) KnownTileOrigins() []string {
	fs, err := f.Load()
	if err != nil {
		f.Log.Warn().Err(err).Msg("Could not read settings")
		return nil
	}
	origins, err := TileOrigins(fs.TileServers)
	if err != nil {
		f.Log.Warn().Err(err).Msg("Invalid tile server in settings")
		return nil
	}
	return origins
}
