package overlay

// Config holds the options for rendering an overlay PDF
type Config struct {
	Debug     bool       `yaml:"debug"`      // draw visible text and word boxes
	LayerName string     `yaml:"layer_name"` // name of the optional content group holding the text
	Font      FontConfig `yaml:"-"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		LayerName: "OCR Text",
		Font:      DefaultFont,
	}
}

// FontConfig contains font settings for the text layer
type FontConfig struct {
	Name        string  // Font name (e.g., "Helvetica")
	Style       string  // Font style ("", "B", "I", "BI")
	Size        float64 // Default font size
	AscentRatio float64 // Vertical positioning ratio
}

// DefaultFont is Helvetica, one of the PDF core fonts, so nothing is embedded
var DefaultFont = FontConfig{
	Name:        "Helvetica",
	Style:       "",
	Size:        10,
	AscentRatio: 0.718,
}
