package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hivebot/hivebot/internal/config"
	"github.com/hivebot/hivebot/internal/store"
)

var tasksTenant string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List scheduled tasks",
	RunE:  runTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksTenant, "tenant", "", "Only show tasks for this tenant folder")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.New(cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.ListTasks(tasksTenant)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No scheduled tasks.")
		return nil
	}

	bold := color.New(color.Bold).SprintFunc()
	statusColor := map[string]func(a ...interface{}) string{
		store.StatusActive:    color.New(color.FgGreen).SprintFunc(),
		store.StatusPaused:    color.New(color.FgYellow).SprintFunc(),
		store.StatusCompleted: color.New(color.FgHiBlack).SprintFunc(),
	}

	for _, t := range tasks {
		paint := statusColor[t.Status]
		if paint == nil {
			paint = fmt.Sprint
		}
		next := "-"
		if t.NextRun != nil {
			next = t.NextRun.Local().Format("2006-01-02 15:04")
		}
		id := t.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("%s  %s  %-8s  %-10s  next %s\n",
			bold(id), paint(t.Status), t.ScheduleType, t.TenantFolder, next)
		fmt.Printf("          %s\n", t.Prompt)
	}
	return nil
}
