package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ObstacleEntry is one static circular obstacle.
type ObstacleEntry struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"`
}

// Color is an RGB triple.
type Color [3]uint8

// Arena is the static layout loaded from arena.yaml.
type Arena struct {
	Width     float64         `yaml:"width"`
	Height    float64         `yaml:"height"`
	Obstacles []ObstacleEntry `yaml:"obstacles"`
	Colors    []Color         `yaml:"colors"`
}

// LoadArena loads an arena layout. Width and height of zero are filled from
// the fallback size.
func LoadArena(path string, width, height float64) (*Arena, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arena layout: %w", err)
	}
	a := &Arena{}
	if err := yaml.Unmarshal(raw, a); err != nil {
		return nil, fmt.Errorf("parse arena layout: %w", err)
	}
	if a.Width == 0 {
		a.Width = width
	}
	if a.Height == 0 {
		a.Height = height
	}
	if len(a.Colors) == 0 {
		a.Colors = DefaultColors()
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("arena layout %s: %w", path, err)
	}
	return a, nil
}

// DefaultArena is the built-in layout.
func DefaultArena(width, height float64) *Arena {
	return &Arena{
		Width:  width,
		Height: height,
		Obstacles: []ObstacleEntry{
			{X: 150, Y: 150, Radius: 40},
			{X: 650, Y: 150, Radius: 40},
			{X: 150, Y: 450, Radius: 40},
			{X: 650, Y: 450, Radius: 40},
			{X: 400, Y: 150, Radius: 30},
			{X: 400, Y: 450, Radius: 30},
			{X: 250, Y: 300, Radius: 50},
			{X: 550, Y: 300, Radius: 50},
		},
		Colors: DefaultColors(),
	}
}

func DefaultColors() []Color {
	return []Color{
		{255, 0, 0},
		{0, 191, 255},
		{50, 205, 50},
		{255, 255, 0},
		{0, 255, 255},
		{255, 0, 255},
		{255, 165, 0},
		{238, 130, 238},
		{255, 255, 255},
		{192, 192, 192},
	}
}

// Color returns the color for a color index, cycling through the palette.
func (a *Arena) Color(i int) Color {
	if len(a.Colors) == 0 {
		return Color{255, 255, 255}
	}
	return a.Colors[i%len(a.Colors)]
}

func (a *Arena) validate() error {
	if a.Width <= 0 || a.Height <= 0 {
		return fmt.Errorf("size must be positive, got %gx%g", a.Width, a.Height)
	}
	for i, o := range a.Obstacles {
		if o.Radius <= 0 {
			return fmt.Errorf("obstacle %d: radius must be positive", i)
		}
		if o.X-o.Radius < 0 || o.Y-o.Radius < 0 || o.X+o.Radius > a.Width || o.Y+o.Radius > a.Height {
			return fmt.Errorf("obstacle %d at (%g,%g) leaves the arena", i, o.X, o.Y)
		}
	}
	return nil
}
