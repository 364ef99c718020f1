package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenDB(model.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestLessonTreeCRUD(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	courses := NewCourseRepository(db)
	modules := NewModuleRepository(db)
	lessons := NewLessonRepository(db)

	course := &model.Course{ID: uuid.NewString(), Title: "Biology"}
	require.NoError(t, courses.Create(ctx, course))
	mod := &model.Module{ID: uuid.NewString(), CourseID: course.ID, Title: "Plants", Position: 1}
	require.NoError(t, modules.Create(ctx, mod))

	second := &model.Lesson{ID: uuid.NewString(), ModuleID: mod.ID, Title: "Respiration", Position: 2}
	first := &model.Lesson{ID: uuid.NewString(), ModuleID: mod.ID, Title: "Photosynthesis", Position: 1}
	require.NoError(t, lessons.Create(ctx, second))
	require.NoError(t, lessons.Create(ctx, first))

	got, err := lessons.FindAllByParent(ctx, mod.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Photosynthesis", got[0].Title)

	first.Outline = "light reactions"
	require.NoError(t, lessons.Update(ctx, first))
	require.NoError(t, lessons.SetVideo(ctx, first.ID, "Completed", "file:///v.mp4"))

	l, err := lessons.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "light reactions", l.Outline)
	assert.Equal(t, "file:///v.mp4", l.VideoRef)

	require.NoError(t, lessons.Delete(ctx, first.ID))
	_, err = lessons.FindByID(ctx, first.ID)
	var ae *errx.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusNotFound, ae.Status)

	assert.Error(t, lessons.SetVideo(ctx, "missing", "Failed", ""))

	all, err := courses.FindAllByParent(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestScriptSectionReplace(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	sections := NewScriptSectionRepository(db)

	mk := func(order int, content string) model.ScriptSection {
		return model.ScriptSection{ID: uuid.NewString(), Content: content, Order: order}
	}
	require.NoError(t, sections.ReplaceForLesson(ctx, "l1", []model.ScriptSection{mk(2, "b"), mk(1, "a")}))
	require.NoError(t, sections.ReplaceForLesson(ctx, "l1", []model.ScriptSection{mk(1, "x"), mk(2, "y"), mk(3, "z")}))

	got, err := sections.FindAllByParent(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{got[0].Content, got[1].Content, got[2].Content})
	assert.Equal(t, "l1", got[0].LessonID)

	dup := []model.ScriptSection{mk(1, "a"), mk(1, "b")}
	assert.Error(t, sections.ReplaceForLesson(ctx, "l2", dup), "unique (lesson, order)")
}
