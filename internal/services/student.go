package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

type StudentService interface {
	Create(ctx context.Context, student *types.Student) (*types.Student, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Student, error)
	List(ctx context.Context) ([]*types.Student, error)
	Update(ctx context.Context, student *types.Student) (*types.Student, error)
}

type studentService struct {
	db       *gorm.DB
	log      *logger.Logger
	students repos.StudentRepo
}

func NewStudentService(db *gorm.DB, log *logger.Logger, students repos.StudentRepo) StudentService {
	return &studentService{
		db:       db,
		log:      log.With("service", "StudentService"),
		students: students,
	}
}

func (s *studentService) Create(ctx context.Context, student *types.Student) (*types.Student, error) {
	if err := validateStudent(student); err != nil {
		return nil, err
	}
	student.ID = uuid.New()
	created, err := s.students.Create(ctx, nil, []*types.Student{student})
	if err != nil {
		return nil, err
	}
	s.log.Info("student created", "student_id", student.ID, "grade_level", student.GradeLevel)
	return created[0], nil
}

func (s *studentService) GetByID(ctx context.Context, id uuid.UUID) (*types.Student, error) {
	student, err := s.students.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, fmt.Errorf("student %s: %w", id, apperrors.ErrNotFound)
	}
	return student, nil
}

func (s *studentService) List(ctx context.Context) ([]*types.Student, error) {
	return s.students.List(ctx, nil)
}

func (s *studentService) Update(ctx context.Context, student *types.Student) (*types.Student, error) {
	if student == nil || student.ID == uuid.Nil {
		return nil, fmt.Errorf("missing student id: %w", apperrors.ErrInvalidArgument)
	}
	if err := validateStudent(student); err != nil {
		return nil, err
	}
	if err := s.students.Update(ctx, nil, student); err != nil {
		return nil, err
	}
	return s.students.GetByID(ctx, nil, student.ID)
}

func validateStudent(student *types.Student) error {
	if student == nil {
		return fmt.Errorf("missing student: %w", apperrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(student.FirstName) == "" {
		return fmt.Errorf("missing first name: %w", apperrors.ErrInvalidArgument)
	}
	if student.GradeLevel < 1 || student.GradeLevel > 12 {
		return fmt.Errorf("grade_level %d out of range 1-12: %w", student.GradeLevel, apperrors.ErrInvalidArgument)
	}
	return nil
}
