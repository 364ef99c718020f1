package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
)

// TreeRepository is the CRUD surface shared by the lesson tree entities.
type TreeRepository[T any] interface {
	Create(ctx context.Context, v *T) error
	FindByID(ctx context.Context, id string) (*T, error)
	// FindAllByParent lists children of parentID in position order.
	// Roots ignore parentID.
	FindAllByParent(ctx context.Context, parentID string) ([]*T, error)
	Update(ctx context.Context, v *T) error
	Delete(ctx context.Context, id string) error
}

type treeRepo[T any] struct {
	db           *gorm.DB
	parentColumn string
	orderColumn  string
}

func (r *treeRepo[T]) Create(ctx context.Context, v *T) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("create %T: %w", v, err)
	}
	return nil
}

func (r *treeRepo[T]) FindByID(ctx context.Context, id string) (*T, error) {
	var v T
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, wrapDB(err)
	}
	return &v, nil
}

func (r *treeRepo[T]) FindAllByParent(ctx context.Context, parentID string) ([]*T, error) {
	q := r.db.WithContext(ctx)
	if r.parentColumn != "" {
		q = q.Where(r.parentColumn+" = ?", parentID)
	}
	var out []*T
	if err := q.Order(r.orderColumn).Find(&out).Error; err != nil {
		return nil, wrapDB(err)
	}
	return out, nil
}

func (r *treeRepo[T]) Update(ctx context.Context, v *T) error {
	res := r.db.WithContext(ctx).Model(v).Select("*").Omit("created_at").Updates(v)
	if res.Error != nil {
		return wrapDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return wrapDB(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *treeRepo[T]) Delete(ctx context.Context, id string) error {
	var v T
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&v).Error; err != nil {
		return wrapDB(err)
	}
	return nil
}

func wrapDB(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errx.New(err, http.StatusNotFound, "record not found")
	}
	return errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage)
}

func NewCourseRepository(db *gorm.DB) TreeRepository[model.Course] {
	return &treeRepo[model.Course]{db: db, orderColumn: "created_at"}
}

func NewModuleRepository(db *gorm.DB) TreeRepository[model.Module] {
	return &treeRepo[model.Module]{db: db, parentColumn: "course_id", orderColumn: "position"}
}

// LessonRepository adds the video bookkeeping the pipeline performs.
type LessonRepository struct {
	treeRepo[model.Lesson]
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{treeRepo[model.Lesson]{db: db, parentColumn: "module_id", orderColumn: "position"}}
}

// SetVideo records the generation status and final video of a lesson.
func (r *LessonRepository) SetVideo(ctx context.Context, lessonID, status, videoRef string) error {
	res := r.db.WithContext(ctx).Model(&model.Lesson{}).
		Where("id = ?", lessonID).
		Updates(map[string]any{"status": status, "video_ref": videoRef})
	if res.Error != nil {
		return wrapDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return wrapDB(gorm.ErrRecordNotFound)
	}
	return nil
}

// ScriptSectionRepository stores the ordered script of each lesson.
type ScriptSectionRepository struct {
	treeRepo[model.ScriptSection]
}

func NewScriptSectionRepository(db *gorm.DB) *ScriptSectionRepository {
	return &ScriptSectionRepository{treeRepo[model.ScriptSection]{db: db, parentColumn: "lesson_id", orderColumn: "section_order"}}
}

// ReplaceForLesson swaps the lesson's script for sections in one transaction.
func (r *ScriptSectionRepository) ReplaceForLesson(ctx context.Context, lessonID string, sections []model.ScriptSection) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lesson_id = ?", lessonID).Delete(&model.ScriptSection{}).Error; err != nil {
			return wrapDB(err)
		}
		if len(sections) == 0 {
			return nil
		}
		rows := make([]model.ScriptSection, len(sections))
		for i, s := range sections {
			s.LessonID = lessonID
			rows[i] = s
		}
		if err := tx.Create(&rows).Error; err != nil {
			return wrapDB(err)
		}
		return nil
	})
}
