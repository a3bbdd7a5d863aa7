package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// CourseFilter narrows catalog searches. Zero values mean "no filter".
type CourseFilter struct {
	Subject    string
	GradeLevel int
	Difficulty string
	Keyword    string
}

type CourseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Course) ([]*types.Course, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Course, error)
	GetByCodes(ctx context.Context, tx *gorm.DB, codes []string) ([]*types.Course, error)
	Search(ctx context.Context, tx *gorm.DB, filter CourseFilter) ([]*types.Course, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.Course) error
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Course) ([]*types.Course, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Course{}, nil
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *courseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Course
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *courseRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Course, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Course
	if err := t.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *courseRepo) GetByCodes(ctx context.Context, tx *gorm.DB, codes []string) ([]*types.Course, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Course
	if len(codes) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("code IN ?", codes).
		Order("code ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Search filters active catalog rows. Keyword matching happens in memory so
// it can reach into the jsonb tag list with one portable query.
func (r *courseRepo) Search(ctx context.Context, tx *gorm.DB, filter CourseFilter) ([]*types.Course, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Where("is_active = ?", true)
	if s := strings.TrimSpace(filter.Subject); s != "" {
		q = q.Where("LOWER(subject) = ?", strings.ToLower(s))
	}
	if filter.GradeLevel > 0 {
		q = q.Where("grade_level_min <= ? AND grade_level_max >= ?", filter.GradeLevel, filter.GradeLevel)
	}
	if d := strings.TrimSpace(filter.Difficulty); d != "" {
		q = q.Where("difficulty = ?", d)
	}
	var rows []*types.Course
	if err := q.Order("subject ASC, code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	kw := strings.ToLower(strings.TrimSpace(filter.Keyword))
	if kw == "" {
		return rows, nil
	}
	out := make([]*types.Course, 0, len(rows))
	for _, c := range rows {
		if courseMatchesKeyword(c, kw) {
			out = append(out, c)
		}
	}
	return out, nil
}

func courseMatchesKeyword(c *types.Course, kw string) bool {
	if strings.Contains(strings.ToLower(c.Title), kw) ||
		strings.Contains(strings.ToLower(c.Description), kw) ||
		strings.Contains(strings.ToLower(c.Code), kw) {
		return true
	}
	for _, tag := range c.TagList() {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}

func (r *courseRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.Course) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	existing, err := r.GetByCode(ctx, t, row.Code)
	if err != nil {
		return err
	}
	if existing == nil {
		return t.WithContext(ctx).Create(row).Error
	}
	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	return t.WithContext(ctx).Save(row).Error
}
