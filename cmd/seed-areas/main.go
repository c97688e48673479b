package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/realronaldrump/everystreet-new-sub000/internal/coverage"
	"github.com/realronaldrump/everystreet-new-sub000/internal/db"
	"github.com/realronaldrump/everystreet-new-sub000/internal/geo"
)

// Manifest lists the coverage areas to load. Street geometry comes from
// GeoJSON FeatureCollections of LineStrings, one file per area.
type Manifest struct {
	Areas []AreaEntry `yaml:"areas"`
}

type AreaEntry struct {
	Name         string `yaml:"name"`
	StreetsFile  string `yaml:"streets_file"`
	BoundaryFile string `yaml:"boundary_file,omitempty"`
}

func main() {
	manifestPath := flag.String("manifest", "areas.yaml", "path to the area manifest")
	replace := flag.Bool("replace", false, "rebuild street geometry for areas that already exist")
	flag.Parse()

	_ = godotenv.Load(".env.local")
	d := db.Connect()
	coverage.Init(d)

	raw, err := os.ReadFile(*manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}
	if len(manifest.Areas) == 0 {
		log.Fatal("manifest lists no areas")
	}

	baseDir := filepath.Dir(*manifestPath)
	svc := coverage.NewService(d)
	ctx := context.Background()

	for _, entry := range manifest.Areas {
		fmt.Printf("========================================\n")
		fmt.Printf("Seeding area %q\n", entry.Name)
		fmt.Printf("========================================\n")

		if err := seedArea(ctx, d, svc, baseDir, entry, *replace); err != nil {
			log.Printf("  ERROR seeding %q: %v", entry.Name, err)
		}
	}
}

func seedArea(ctx context.Context, d *gorm.DB, svc *coverage.Service, baseDir string, entry AreaEntry, replace bool) error {
	fc, err := loadFeatureCollection(filepath.Join(baseDir, entry.StreetsFile))
	if err != nil {
		return fmt.Errorf("load streets: %w", err)
	}

	var area coverage.CoverageArea
	err = d.WithContext(ctx).First(&area, "name = ?", entry.Name).Error
	switch {
	case err == nil && !replace:
		fmt.Printf("  already exists (version %d), skipping; use --replace to rebuild\n", area.AreaVersion)
		return nil
	case err == nil:
		area.AreaVersion++
		area.Status = coverage.AreaRebuilding
		if err := d.WithContext(ctx).Save(&area).Error; err != nil {
			return fmt.Errorf("mark rebuilding: %w", err)
		}
		fmt.Printf("  rebuilding as version %d\n", area.AreaVersion)
	case errors.Is(err, gorm.ErrRecordNotFound):
		area = coverage.CoverageArea{
			Name:        entry.Name,
			AreaVersion: 1,
			Status:      coverage.AreaInitializing,
		}
		if err := d.WithContext(ctx).Create(&area).Error; err != nil {
			return fmt.Errorf("create area: %w", err)
		}
	default:
		return err
	}

	if entry.BoundaryFile != "" {
		boundary, err := os.ReadFile(filepath.Join(baseDir, entry.BoundaryFile))
		if err != nil {
			return fmt.Errorf("load boundary: %w", err)
		}
		area.Boundary = datatypes.JSON(boundary)
	}

	streets, bound, err := buildStreets(area.ID, area.AreaVersion, fc)
	if err != nil {
		return err
	}
	if err := d.WithContext(ctx).CreateInBatches(streets, 500).Error; err != nil {
		area.Status = coverage.AreaError
		_ = d.WithContext(ctx).Save(&area).Error
		return fmt.Errorf("insert streets: %w", err)
	}

	area.MinLon, area.MinLat = bound.Min.Lon(), bound.Min.Lat()
	area.MaxLon, area.MaxLat = bound.Max.Lon(), bound.Max.Lat()
	area.Status = coverage.AreaReady
	if err := d.WithContext(ctx).Save(&area).Error; err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	stats, err := svc.UpdateAreaStats(ctx, area.ID)
	if err != nil {
		return fmt.Errorf("refresh stats: %w", err)
	}
	fmt.Printf("  loaded %d segments, %.1f miles of streets\n", stats.TotalSegments, stats.TotalLengthMiles)
	return nil
}

func loadFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(raw)
}

func buildStreets(areaID uuid.UUID, version int, fc *geojson.FeatureCollection) ([]coverage.Street, orb.Bound, error) {
	var streets []coverage.Street
	var bound orb.Bound
	first := true

	for i, feature := range fc.Features {
		line, ok := feature.Geometry.(orb.LineString)
		if !ok || len(line) < 2 {
			continue
		}

		segmentID := feature.Properties.MustString("segment_id", "")
		if segmentID == "" {
			segmentID = fmt.Sprintf("seg-%06d", i)
		}

		rawGeom, err := geojson.NewGeometry(line).MarshalJSON()
		if err != nil {
			return nil, orb.Bound{}, fmt.Errorf("encode segment %s: %w", segmentID, err)
		}

		if first {
			bound = line.Bound()
			first = false
		} else {
			bound = bound.Union(line.Bound())
		}

		streets = append(streets, coverage.Street{
			AreaID:       areaID,
			AreaVersion:  version,
			SegmentID:    segmentID,
			Geometry:     datatypes.JSON(rawGeom),
			StreetName:   feature.Properties.MustString("name", ""),
			HighwayClass: feature.Properties.MustString("highway", ""),
			LengthMiles:  geo.LineLengthMeters(line) / geo.MetersPerMile,
		})
	}
	if len(streets) == 0 {
		return nil, orb.Bound{}, fmt.Errorf("no usable LineString features")
	}
	return streets, bound, nil
}
