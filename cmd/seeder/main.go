package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"image"
	"image/color"
	"image/png"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/geoset"
	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/media"
)

// Each seed line is "query|answer|solution". The solution is optional.
var seedLines = []string{
	"Which hemisphere is this coastline in?|Southern|The sun's position and shadow angles indicate a southern latitude.",
	"What country does this road signage suggest?|Japan|Blue expressway signs with this typeface are standard on Japanese highways.",
	"Is this a Mediterranean or tropical climate?|Mediterranean|Terracotta roofs and dry scrub vegetation point to a Mediterranean zone.",
	"Which side of the road do vehicles drive on here?|Left|The right-hand driver position of oncoming cars confirms left-hand traffic.",
	"What mountain range is visible in the background?|Andes|The altitude, aridity, and volcanic cones are characteristic of the Andes.",
	"Does this vegetation suggest a coastal or inland location?|Coastal|Salt-tolerant dune grasses of this kind grow only near shorelines.",
	"Which continent is this savanna most likely on?|Africa|Flat-topped acacia trees of this form are endemic to the African savanna.",
	"What does the script on these storefronts indicate?|Thailand|The abugida script with these tone markers is Thai.",
	"Is this photo from the tropics?|No|Deciduous trees in autumn color rule out a tropical latitude.",
	"What kind of bollard is this?|French|White bollards with a red reflective band are standard on French routes.",
	"Which country uses these yellow license plates?|Netherlands|Yellow rear and front plates with blue EU bands are Dutch.",
	"What biome does this landscape belong to?|Tundra|Permafrost polygons and the absence of trees mark arctic tundra.",
	"Is this urban layout typical of North America?|Yes|A rectilinear grid with wide lanes and frequent stop signs is North American.",
	"What sea is most likely behind these cliffs?|Aegean|Whitewashed cubic architecture above deep blue water suggests the Aegean.",
	"Which hemisphere does this sun position imply at noon?|Northern|A southern sun at midday places the camera north of the equator.",
	"What does the red soil here indicate?|Laterite weathering|Iron-rich laterite soils form under prolonged tropical weathering.",
	"Which country's utility poles are these?|South Korea|Square concrete poles with this bracket style are South Korean.",
	"Is this river braided or meandering?|Braided|Multiple shifting gravel channels indicate a braided river.",
	"What language is on this road marking?|Portuguese|The word LENTO painted on the lane is Portuguese.",
	"Which desert is this likely to be?|Atacama|Absolute barrenness with coastal fog banks matches the Atacama.",
}

var (
	seedFileName = flag.String("src", "", "file of seed data, one query|answer|solution per line")
	dataDir      = flag.String("data", "geoset-data", "storage root directory")
	withImages   = flag.Bool("images", true, "attach a generated placeholder image to each record")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// placeholderImage renders a small flat-color PNG so seeded records
// exercise the image path without shipping binary fixtures.
func placeholderImage(seed int) string {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	shade := color.RGBA{R: uint8(40 * seed % 255), G: uint8(90 + seed%100), B: 200, A: 255}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, shade)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ""
	}
	return media.EncodeDataURI("image/png", buf.Bytes())
}

func seedRecords(ctx context.Context, store *geoset.Store, source iter.Seq[string]) (int, error) {
	saved := 0
	for line := range source {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 2 {
			slog.Warn("skipping malformed seed line", "line", line)
			continue
		}

		data := core.RecordData{
			Query:             strings.TrimSpace(parts[0]),
			GroundTruthAnswer: strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			data.Solution = strings.TrimSpace(parts[2])
		}
		if *withImages {
			data.Image = placeholderImage(saved)
		}

		record := core.NewRecord(data)
		if err := store.Adapter().SaveRecord(ctx, record); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

func main() {
	ctx := context.Background()

	store := geoset.NewStore(ctx, geoset.WithDataDir(*dataDir))
	defer store.Close()

	var (
		source iter.Seq[string]
		err    error
	)
	if seedFileName != nil && *seedFileName != "" {
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = linesFromSlice(seedLines)
	}

	saved, err := seedRecords(ctx, store, source)
	if err != nil {
		panic(err)
	}
	slog.Info("seeding complete", "records", saved)
}
