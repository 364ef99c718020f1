package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/lessonforge/server/internal/agent/graph"
	"github.com/lessonforge/server/internal/agent/model"
	"github.com/lessonforge/server/internal/agent/repo"
	"github.com/lessonforge/server/internal/media"
	"github.com/lessonforge/server/internal/storage"
)

var (
	genLessonID       string
	genTitle          string
	genOutline        string
	genOutlineFile    string
	genCourseTitle    string
	genModuleTitle    string
	genConversationID string
	genOut            string
)

func GetGenerateCommand() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the narrated video of one lesson",
		Long: `Runs the full pipeline for one lesson: script, storyboard, scene assets and
video assembly. The lesson is either loaded from the database (--lesson-id) or
described on the command line.

Example:
  lessonforge generate --title "Photosynthesis" --outline-file outline.md
  lessonforge generate --lesson-id 5f0c... --conversation-id course-42`,
		RunE: runGenerate,
	}
	generateCmd.Flags().StringVar(&genLessonID, "lesson-id", "", "Lesson to load from the database; its status and video are updated")
	generateCmd.Flags().StringVarP(&genTitle, "title", "t", "", "Lesson title")
	generateCmd.Flags().StringVar(&genOutline, "outline", "", "Lesson outline")
	generateCmd.Flags().StringVarP(&genOutlineFile, "outline-file", "f", "", "Read the lesson outline from a file")
	generateCmd.Flags().StringVar(&genCourseTitle, "course", "", "Course title used as prompt context")
	generateCmd.Flags().StringVar(&genModuleTitle, "module", "", "Module title used as prompt context")
	generateCmd.Flags().StringVar(&genConversationID, "conversation-id", "", "Conversation whose history and summary shape the prompts")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write the run manifest to this file instead of stdout")
	return generateCmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig

	db, closeDB, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	req, err := lessonRequest()
	if err != nil {
		return err
	}
	if genLessonID != "" {
		if db == nil {
			return errors.New("--lesson-id requires a database")
		}
		if err := loadLesson(ctx, db, &req); err != nil {
			return err
		}
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	conversations, closeConversations, err := openConversations(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConversations()

	engine := media.NewFFmpeg(cfg.Media)
	if err := engine.AssertReady(); err != nil {
		return err
	}
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeQuietly(store)

	pipelineCfg := graph.Config{
		Registry:         registry,
		Pipeline:         cfg.Pipeline,
		Media:            cfg.Media,
		Conversation:     cfg.Conversation,
		ConversationRepo: conversations,
		Engine:           engine,
		Store:            store,
	}
	if db != nil {
		pipelineCfg.Sections = repo.NewScriptSectionRepository(db)
		pipelineCfg.Lessons = repo.NewLessonRepository(db)
	}
	runner, err := graph.BuildPipeline(ctx, pipelineCfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	result, runErr := runner.Run(ctx, req)
	if result != nil && result.Manifest != nil {
		if err := writeManifest(cmd, result.Status, result.Manifest); err != nil {
			return err
		}
	}
	return runErr
}

func lessonRequest() (model.LessonRequest, error) {
	outline := genOutline
	if genOutlineFile != "" {
		b, err := os.ReadFile(genOutlineFile)
		if err != nil {
			return model.LessonRequest{}, fmt.Errorf("read outline: %w", err)
		}
		outline = string(b)
	}
	req := model.LessonRequest{
		LessonID:       genLessonID,
		CourseTitle:    genCourseTitle,
		ModuleTitle:    genModuleTitle,
		LessonTitle:    genTitle,
		Outline:        strings.TrimSpace(outline),
		ConversationID: genConversationID,
	}
	if req.LessonID == "" && req.LessonTitle == "" && req.Outline == "" {
		return req, errors.New("either --lesson-id or --title/--outline is required")
	}
	return req, nil
}

// loadLesson fills the request from the stored lesson tree. Values given on
// the command line win.
func loadLesson(ctx context.Context, db *gorm.DB, req *model.LessonRequest) error {
	lesson, err := repo.NewLessonRepository(db).FindByID(ctx, req.LessonID)
	if err != nil {
		return err
	}
	if req.LessonTitle == "" {
		req.LessonTitle = lesson.Title
	}
	if req.Outline == "" {
		req.Outline = lesson.Outline
	}

	module, err := repo.NewModuleRepository(db).FindByID(ctx, lesson.ModuleID)
	if err != nil {
		return err
	}
	if req.ModuleTitle == "" {
		req.ModuleTitle = module.Title
	}
	course, err := repo.NewCourseRepository(db).FindByID(ctx, module.CourseID)
	if err != nil {
		return err
	}
	if req.CourseTitle == "" {
		req.CourseTitle = course.Title
	}
	return nil
}

func writeManifest(cmd *cobra.Command, status model.Stage, m *model.Manifest) error {
	out := struct {
		Status model.Stage `json:"status"`
		*model.Manifest
	}{status, m}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if genOut != "" {
		return os.WriteFile(genOut, append(b, '\n'), 0o644)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
