package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/evlinhq/evlin-backend/internal/data/db"
	"github.com/evlinhq/evlin-backend/internal/data/graph"
	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
	"github.com/evlinhq/evlin-backend/internal/platform/neo4jdb"
)

type catalogCourse struct {
	Code          string   `yaml:"code"`
	Title         string   `yaml:"title"`
	Subject       string   `yaml:"subject"`
	GradeLevelMin int      `yaml:"grade_level_min"`
	GradeLevelMax int      `yaml:"grade_level_max"`
	Description   string   `yaml:"description"`
	DurationWeeks int      `yaml:"duration_weeks"`
	HoursPerWeek  float64  `yaml:"hours_per_week"`
	Difficulty    string   `yaml:"difficulty"`
	Prerequisites []string `yaml:"prerequisites"`
	Tags          []string `yaml:"tags"`
}

type catalog struct {
	Courses []catalogCourse `yaml:"courses"`
	Related [][]string      `yaml:"related"`
}

// Seeds the course catalog into Postgres and mirrors it into the graph
// store as PREREQUISITE_FOR / RELATED_TO edges. Safe to re-run.
func main() {
	catalogPath := flag.String("catalog", "config/seed_catalog.yaml", "path to the catalog file")
	skipGraph := flag.Bool("skip-graph", false, "seed Postgres only")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logger.New("development")
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	raw, err := os.ReadFile(*catalogPath)
	if err != nil {
		log.Fatal("read catalog", "path", *catalogPath, "error", err)
	}
	var cat catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		log.Fatal("parse catalog", "path", *catalogPath, "error", err)
	}
	if len(cat.Courses) == 0 {
		log.Fatal("catalog is empty", "path", *catalogPath)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}

	ctx := context.Background()
	courseRepo := repos.NewCourseRepo(postgresService.DB(), log)

	courses := make([]*types.Course, 0, len(cat.Courses))
	for _, cc := range cat.Courses {
		row, err := toCourse(cc)
		if err != nil {
			log.Fatal("bad catalog entry", "code", cc.Code, "error", err)
		}
		if err := courseRepo.Upsert(ctx, nil, row); err != nil {
			log.Fatal("upsert course", "code", cc.Code, "error", err)
		}
		courses = append(courses, row)
	}
	log.Info("catalog seeded", "courses", len(courses))

	if *skipGraph {
		return
	}

	graphDB, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("Neo4j init failed", "error", err)
	}
	if graphDB == nil {
		log.Warn("NEO4J_URI not set; skipping graph seed")
		return
	}
	defer graphDB.Close(ctx)

	edges := make([]graph.CourseEdge, 0)
	for _, cc := range cat.Courses {
		for _, prereq := range cc.Prerequisites {
			edges = append(edges, graph.CourseEdge{
				FromCode: prereq,
				ToCode:   cc.Code,
				Type:     graph.EdgePrerequisiteFor,
			})
		}
	}
	for _, pair := range cat.Related {
		if len(pair) != 2 {
			log.Fatal("related entries must be pairs", "entry", pair)
		}
		edges = append(edges, graph.CourseEdge{
			FromCode: pair[0],
			ToCode:   pair[1],
			Type:     graph.EdgeRelatedTo,
		})
	}

	if err := graph.UpsertCourseGraph(ctx, graphDB, log, courses, edges); err != nil {
		log.Fatal("graph seed failed", "error", err)
	}
	log.Info("graph seeded", "nodes", len(courses), "edges", len(edges))
}

func toCourse(cc catalogCourse) (*types.Course, error) {
	if cc.Code == "" || cc.Title == "" {
		return nil, fmt.Errorf("code and title are required")
	}
	prereqs, err := json.Marshal(cc.Prerequisites)
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(cc.Tags)
	if err != nil {
		return nil, err
	}
	difficulty := cc.Difficulty
	if difficulty == "" {
		difficulty = "standard"
	}
	return &types.Course{
		Code:          cc.Code,
		Title:         cc.Title,
		Subject:       cc.Subject,
		GradeLevelMin: cc.GradeLevelMin,
		GradeLevelMax: cc.GradeLevelMax,
		Description:   cc.Description,
		DurationWeeks: cc.DurationWeeks,
		HoursPerWeek:  cc.HoursPerWeek,
		Difficulty:    difficulty,
		Prerequisites: datatypes.JSON(prereqs),
		Tags:          datatypes.JSON(tags),
		IsActive:      true,
	}, nil
}
