package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/klokku/calexport/pkg/settings"
)

// Colour is one of the eleven event colours the provider offers.
type Colour int

const (
	Lavender Colour = iota + 1
	Sage
	Grape
	Flamingo
	Banana
	Tangerine
	Peacock
	Graphite
	Blueberry
	Basil
	Tomato
)

// DefaultColour is used when neither the event nor its calendar says anything usable.
const DefaultColour = Peacock

var colourNames = [...]string{
	Lavender:  "Lavender",
	Sage:      "Sage",
	Grape:     "Grape",
	Flamingo:  "Flamingo",
	Banana:    "Banana",
	Tangerine: "Tangerine",
	Peacock:   "Peacock",
	Graphite:  "Graphite",
	Blueberry: "Blueberry",
	Basil:     "Basil",
	Tomato:    "Tomato",
}

var colourHex = [...]string{
	Lavender:  "#7986CB",
	Sage:      "#33B679",
	Grape:     "#8E24AA",
	Flamingo:  "#E67C73",
	Banana:    "#F6BF26",
	Tangerine: "#F4511E",
	Peacock:   "#039BE5",
	Graphite:  "#616161",
	Blueberry: "#3F51B5",
	Basil:     "#0B8043",
	Tomato:    "#D50000",
}

// AllColours lists the colours in provider id order.
func AllColours() []Colour {
	colours := make([]Colour, 0, len(colourNames)-1)
	for c := Lavender; c <= Tomato; c++ {
		colours = append(colours, c)
	}
	return colours
}

func (c Colour) Valid() bool {
	return c >= Lavender && c <= Tomato
}

func (c Colour) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Colour(%d)", int(c))
	}
	return colourNames[c]
}

func (c Colour) Hex() string {
	if !c.Valid() {
		return ""
	}
	return colourHex[c]
}

// ID is the provider colour id.
func (c Colour) ID() string {
	return strconv.Itoa(int(c))
}

// ColourFromID maps a provider colour id. ok is false for an empty or unknown id.
func ColourFromID(id string) (Colour, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return 0, false
	}
	c := Colour(n)
	return c, c.Valid()
}

// ResolveColour returns the colour of an event: its own colour id when known, the calendar
// default otherwise.
func ResolveColour(id string, calendarDefault Colour) Colour {
	if c, ok := ColourFromID(id); ok {
		return c
	}
	if calendarDefault.Valid() {
		return calendarDefault
	}
	return DefaultColour
}

// ParseColour looks a colour up by name, ignoring case.
func ParseColour(name string) (Colour, error) {
	name = strings.TrimSpace(name)
	for _, c := range AllColours() {
		if strings.EqualFold(c.String(), name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown colour %q", name)
}

// ParseColours parses a list of colour names, rejecting unknown ones.
func ParseColours(names []string) ([]Colour, error) {
	colours := make([]Colour, 0, len(names))
	for _, name := range names {
		c, err := ParseColour(name)
		if err != nil {
			return nil, err
		}
		colours = append(colours, c)
	}
	return colours, nil
}

// NearestColour returns the colour closest (by RGB distance) to a calendar background colour
// such as "#9fe1e7". Unparsable input gives DefaultColour.
func NearestColour(hex string) Colour {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return DefaultColour
	}
	best := DefaultColour
	bestDistance := -1
	for _, c := range AllColours() {
		cr, cg, cb, _ := parseHex(c.Hex())
		distance := (r-cr)*(r-cr) + (g-cg)*(g-cg) + (b-cb)*(b-cb)
		if bestDistance < 0 || distance < bestDistance {
			best, bestDistance = c, distance
		}
	}
	return best
}

func parseHex(hex string) (int, int, int, bool) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}

// ColourTypeMap assigns optional type labels to colours.
type ColourTypeMap map[Colour]string

// Label returns the type label of c, empty when unmapped.
func (m ColourTypeMap) Label(c Colour) string {
	return strings.TrimSpace(m[c])
}

// ParseColourTypeMap builds a ColourTypeMap from colour names. Blank labels are dropped.
func ParseColourTypeMap(byName map[string]string) (ColourTypeMap, error) {
	typeMap := make(ColourTypeMap, len(byName))
	for name, label := range byName {
		c, err := ParseColour(name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(label) != "" {
			typeMap[c] = strings.TrimSpace(label)
		}
	}
	return typeMap, nil
}

// ByName is the inverse of ParseColourTypeMap.
func (m ColourTypeMap) ByName() map[string]string {
	byName := make(map[string]string, len(m))
	for c, label := range m {
		byName[c.String()] = label
	}
	return byName
}

type ColourDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

func Catalogue() []ColourDTO {
	catalogue := make([]ColourDTO, 0, len(colourNames)-1)
	for _, c := range AllColours() {
		catalogue = append(catalogue, ColourDTO{ID: c.ID(), Name: c.String(), Hex: c.Hex()})
	}
	return catalogue
}

// ValidateSettings rejects saved settings naming unknown colours.
func ValidateSettings(s settings.Settings) error {
	if _, err := ParseColours(s.ColourSelection); err != nil {
		return err
	}
	_, err := ParseColourTypeMap(s.TypeMap)
	return err
}
