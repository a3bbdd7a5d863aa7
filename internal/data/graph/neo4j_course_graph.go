package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
	"github.com/evlinhq/evlin-backend/internal/platform/neo4jdb"
)

const (
	EdgePrerequisiteFor = "PREREQUISITE_FOR"
	EdgeRelatedTo       = "RELATED_TO"
)

// CourseEdge is one typed edge between two catalog courses.
type CourseEdge struct {
	FromCode string
	ToCode   string
	// Type is EdgePrerequisiteFor or EdgeRelatedTo.
	Type string
}

// UpsertCourseGraph mirrors the catalog into Neo4j: one Course node per code
// plus the prerequisite and related edges. Safe to re-run; everything merges
// on course code.
func UpsertCourseGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, courses []*types.Course, edges []CourseEdge) error {
	if !client.Available() {
		return fmt.Errorf("course graph sync: %w", apperrors.ErrStorageUnavailable)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	nodes := make([]map[string]any, 0, len(courses))
	for _, c := range courses {
		if c == nil || c.Code == "" {
			continue
		}
		nodes = append(nodes, map[string]any{
			"code":            c.Code,
			"title":           c.Title,
			"subject":         c.Subject,
			"grade_level_min": c.GradeLevelMin,
			"grade_level_max": c.GradeLevelMax,
			"difficulty":      c.Difficulty,
			"duration_weeks":  c.DurationWeeks,
			"synced_at":       now,
		})
	}
	prereqRels := make([]map[string]any, 0, len(edges))
	relatedRels := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e.FromCode == "" || e.ToCode == "" {
			continue
		}
		rel := map[string]any{"from": e.FromCode, "to": e.ToCode, "synced_at": now}
		switch e.Type {
		case EdgePrerequisiteFor:
			prereqRels = append(prereqRels, rel)
		case EdgeRelatedTo:
			relatedRels = append(relatedRels, rel)
		}
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	{
		stmts := []string{
			`CREATE CONSTRAINT course_code_unique IF NOT EXISTS FOR (c:Course) REQUIRE c.code IS UNIQUE`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				if log != nil {
					log.Warn("neo4j schema init failed (continuing)", "error", err)
				}
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $courses AS c
MERGE (n:Course {code: c.code})
SET n += c
`, map[string]any{"courses": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		if len(prereqRels) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Course {code: r.from})
MATCH (b:Course {code: r.to})
MERGE (a)-[e:PREREQUISITE_FOR]->(b)
SET e.synced_at = r.synced_at
`, map[string]any{"rels": prereqRels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		if len(relatedRels) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Course {code: r.from})
MATCH (b:Course {code: r.to})
MERGE (a)-[e:RELATED_TO]->(b)
SET e.synced_at = r.synced_at
`, map[string]any{"rels": relatedRels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("course graph sync: %w", err)
	}
	return nil
}

// PrerequisitesOf returns the codes of courses with a direct
// PREREQUISITE_FOR edge into the given course.
func PrerequisitesOf(ctx context.Context, client *neo4jdb.Client, courseCode string) ([]string, error) {
	return readCodes(ctx, client, `
MATCH (p:Course)-[:PREREQUISITE_FOR]->(c:Course {code: $code})
RETURN p.code AS code
ORDER BY code
`, courseCode)
}

// PrerequisiteChain returns every transitive prerequisite of the course,
// nearest first.
func PrerequisiteChain(ctx context.Context, client *neo4jdb.Client, courseCode string) ([]string, error) {
	return readCodes(ctx, client, `
MATCH path = (p:Course)-[:PREREQUISITE_FOR*1..]->(c:Course {code: $code})
RETURN p.code AS code, min(length(path)) AS depth
ORDER BY depth ASC, code ASC
`, courseCode)
}

// RelatedCourses returns codes linked by RELATED_TO in either direction.
func RelatedCourses(ctx context.Context, client *neo4jdb.Client, courseCode string) ([]string, error) {
	return readCodes(ctx, client, `
MATCH (c:Course {code: $code})-[:RELATED_TO]-(r:Course)
RETURN DISTINCT r.code AS code
ORDER BY code
`, courseCode)
}

func readCodes(ctx context.Context, client *neo4jdb.Client, query, courseCode string) ([]string, error) {
	if !client.Available() {
		return nil, fmt.Errorf("course graph read: %w", apperrors.ErrStorageUnavailable)
	}
	if courseCode == "" {
		return nil, fmt.Errorf("course graph read: missing course code: %w", apperrors.ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"code": courseCode})
		if err != nil {
			return nil, err
		}
		codes := []string{}
		for res.Next(ctx) {
			if v, ok := res.Record().Get("code"); ok {
				if s, ok := v.(string); ok && s != "" {
					codes = append(codes, s)
				}
			}
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return codes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("course graph read: %w", err)
	}
	return out.([]string), nil
}
