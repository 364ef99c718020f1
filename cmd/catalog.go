package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/lessonforge/server/internal/agent/model"
	"github.com/lessonforge/server/internal/agent/repo"
)

var (
	catTitle    string
	catParentID string
	catOutline  string
	catPosition int
)

// GetCatalogCommand manages the course, module and lesson tree that
// generate --lesson-id reads from.
func GetCatalogCommand() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage courses, modules and lessons",
	}

	courseCmd := &cobra.Command{
		Use:   "add-course",
		Short: "Create a course",
		RunE: withDB(func(cmd *cobra.Command, db *gorm.DB) error {
			c := &model.Course{ID: uuid.NewString(), Title: catTitle}
			if err := repo.NewCourseRepository(db).Create(cmd.Context(), c); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return err
		}),
	}
	courseCmd.Flags().StringVarP(&catTitle, "title", "t", "", "Course title (required)")
	_ = courseCmd.MarkFlagRequired("title")

	moduleCmd := &cobra.Command{
		Use:   "add-module",
		Short: "Create a module inside a course",
		RunE: withDB(func(cmd *cobra.Command, db *gorm.DB) error {
			if _, err := repo.NewCourseRepository(db).FindByID(cmd.Context(), catParentID); err != nil {
				return err
			}
			m := &model.Module{ID: uuid.NewString(), CourseID: catParentID, Title: catTitle, Position: catPosition}
			if err := repo.NewModuleRepository(db).Create(cmd.Context(), m); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return err
		}),
	}
	moduleCmd.Flags().StringVarP(&catTitle, "title", "t", "", "Module title (required)")
	moduleCmd.Flags().StringVar(&catParentID, "course-id", "", "Parent course (required)")
	moduleCmd.Flags().IntVar(&catPosition, "position", 0, "Position within the course")
	_ = moduleCmd.MarkFlagRequired("title")
	_ = moduleCmd.MarkFlagRequired("course-id")

	lessonCmd := &cobra.Command{
		Use:   "add-lesson",
		Short: "Create a lesson inside a module",
		RunE: withDB(func(cmd *cobra.Command, db *gorm.DB) error {
			if _, err := repo.NewModuleRepository(db).FindByID(cmd.Context(), catParentID); err != nil {
				return err
			}
			outline := catOutline
			if len(outline) > 0 && outline[0] == '@' {
				b, err := os.ReadFile(outline[1:])
				if err != nil {
					return fmt.Errorf("read outline: %w", err)
				}
				outline = string(b)
			}
			l := &model.Lesson{ID: uuid.NewString(), ModuleID: catParentID, Title: catTitle, Outline: outline, Position: catPosition}
			if err := repo.NewLessonRepository(db).Create(cmd.Context(), l); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), l.ID)
			return err
		}),
	}
	lessonCmd.Flags().StringVarP(&catTitle, "title", "t", "", "Lesson title (required)")
	lessonCmd.Flags().StringVar(&catParentID, "module-id", "", "Parent module (required)")
	lessonCmd.Flags().StringVar(&catOutline, "outline", "", "Lesson outline, or @file to read it from a file")
	lessonCmd.Flags().IntVar(&catPosition, "position", 0, "Position within the module")
	_ = lessonCmd.MarkFlagRequired("title")
	_ = lessonCmd.MarkFlagRequired("module-id")

	listCmd := &cobra.Command{
		Use:   "lessons",
		Short: "List the lessons of a module with their video status",
		RunE: withDB(func(cmd *cobra.Command, db *gorm.DB) error {
			lessons, err := repo.NewLessonRepository(db).FindAllByParent(cmd.Context(), catParentID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPOSITION\tTITLE\tSTATUS\tVIDEO")
			for _, l := range lessons {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", l.ID, l.Position, l.Title, l.Status, l.VideoRef)
			}
			return w.Flush()
		}),
	}
	listCmd.Flags().StringVar(&catParentID, "module-id", "", "Module to list (required)")
	_ = listCmd.MarkFlagRequired("module-id")

	catalogCmd.AddCommand(courseCmd, moduleCmd, lessonCmd, listCmd)
	return catalogCmd
}

func withDB(fn func(cmd *cobra.Command, db *gorm.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		db, closeDB, err := openDatabase(appConfig)
		if err != nil {
			return err
		}
		defer closeDB()
		if db == nil {
			return fmt.Errorf("catalog commands require a database")
		}
		return fn(cmd, db)
	}
}
