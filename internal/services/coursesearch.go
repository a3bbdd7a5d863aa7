package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/evlinhq/evlin-backend/internal/data/graph"
	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
	"github.com/evlinhq/evlin-backend/internal/platform/neo4jdb"
	"github.com/evlinhq/evlin-backend/internal/platform/redisdb"
)

// CourseSearchService is the read-only catalog surface: filtered search with
// an optional Redis read-through cache, plus graph-backed related courses.
type CourseSearchService interface {
	Search(ctx context.Context, filter repos.CourseFilter) ([]*types.Course, error)
	GetByCode(ctx context.Context, code string) (*types.Course, error)
	// Related returns RELATED_TO neighbors from the graph, resolved against
	// the catalog. An unavailable graph yields an empty list, not an error.
	Related(ctx context.Context, code string) ([]*types.Course, error)
}

type courseSearchService struct {
	db      *gorm.DB
	log     *logger.Logger
	courses repos.CourseRepo
	cache   *redisdb.Client
	graphDB *neo4jdb.Client

	cacheTTL time.Duration
}

func NewCourseSearchService(db *gorm.DB, log *logger.Logger, courses repos.CourseRepo, cache *redisdb.Client, graphDB *neo4jdb.Client) CourseSearchService {
	return &courseSearchService{
		db:       db,
		log:      log.With("service", "CourseSearchService"),
		courses:  courses,
		cache:    cache,
		graphDB:  graphDB,
		cacheTTL: time.Duration(envutil.Int("COURSE_CACHE_TTL_SECONDS", 300)) * time.Second,
	}
}

func (s *courseSearchService) Search(ctx context.Context, filter repos.CourseFilter) ([]*types.Course, error) {
	key := s.cacheKey(filter)
	if s.cache.Available() {
		if raw, err := s.cache.RDB.Get(ctx, key).Bytes(); err == nil {
			var cached []*types.Course
			if uErr := json.Unmarshal(raw, &cached); uErr == nil {
				return cached, nil
			}
		} else if err != goredis.Nil {
			s.log.Warn("course cache read failed", "error", err)
		}
	}

	out, err := s.courses.Search(ctx, nil, filter)
	if err != nil {
		return nil, err
	}

	if s.cache.Available() {
		if raw, mErr := json.Marshal(out); mErr == nil {
			if err := s.cache.RDB.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
				s.log.Warn("course cache write failed", "error", err)
			}
		}
	}
	return out, nil
}

func (s *courseSearchService) GetByCode(ctx context.Context, code string) (*types.Course, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("missing course code: %w", apperrors.ErrInvalidArgument)
	}
	course, err := s.courses.GetByCode(ctx, nil, code)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, fmt.Errorf("course %s: %w", code, apperrors.ErrNotFound)
	}
	return course, nil
}

func (s *courseSearchService) Related(ctx context.Context, code string) ([]*types.Course, error) {
	if !s.graphDB.Available() {
		return []*types.Course{}, nil
	}
	codes, err := graph.RelatedCourses(ctx, s.graphDB, code)
	if err != nil {
		s.log.Warn("related course lookup failed", "course_code", code, "error", err)
		return []*types.Course{}, nil
	}
	if len(codes) == 0 {
		return []*types.Course{}, nil
	}
	return s.courses.GetByCodes(ctx, nil, codes)
}

func (s *courseSearchService) cacheKey(filter repos.CourseFilter) string {
	return fmt.Sprintf("course_search:%s:%d:%s:%s",
		strings.ToLower(filter.Subject), filter.GradeLevel,
		strings.ToLower(filter.Difficulty), strings.ToLower(filter.Keyword))
}
