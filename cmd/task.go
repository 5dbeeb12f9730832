package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/sagan/gridgen/internal/matrix"
	"github.com/sagan/gridgen/internal/model"
	"github.com/sagan/gridgen/internal/orchestrator"
	"github.com/sagan/gridgen/internal/runtime"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Submit and inspect image-generation tasks",
}

var runCmd = &cobra.Command{
	Use:   "run {task.json | -}",
	Short: "Submit a task, wait for it to finish, and print the result matrix",
	Long: `Submit a task, wait for it to finish, and print the result matrix.

task.json is a CreateTaskInput document: { name, owner, queue?, priority?,
tags[], variables{} }. Use "-" to read it from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: doTaskRun,
}

var (
	flagTaskOutput  string
	flagTaskTimeout time.Duration
)

func init() {
	runCmd.Flags().StringVarP(&flagTaskOutput, "output", "o", "-", `Matrix JSON output path. Use "-" for stdout`)
	runCmd.Flags().DurationVarP(&flagTaskTimeout, "timeout", "t", 30*time.Minute, "Give up waiting after this long")
	taskCmd.AddCommand(runCmd)
	RootCmd.AddCommand(taskCmd)
}

func doTaskRun(c *cobra.Command, args []string) error {
	input, err := readTaskInput(args[0])
	if err != nil {
		return err
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), flagTaskTimeout)
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	task, err := rt.Orchestrator.CreateTask(ctx, *input)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	final, err := waitForTerminal(ctx, rt.Orchestrator, task.ID)
	if err != nil {
		return err
	}

	subtasks := rt.Store.SubtasksByParent(final.ID)
	entries := matrix.Build(subtasks)

	out := struct {
		TaskID               string            `json:"task_id"`
		TaskName             string            `json:"task_name"`
		Status               model.TaskStatus  `json:"status"`
		TotalImages          int               `json:"total_images"`
		ProcessedImages      int               `json:"processed_images"`
		CoordinatesByIndices map[string]string `json:"coordinates_by_indices"`
	}{
		TaskID: final.ID, TaskName: final.Name, Status: final.Status,
		TotalImages: final.TotalImages, ProcessedImages: final.ProcessedImages,
		CoordinatesByIndices: entries,
	}
	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	if flagTaskOutput == "-" {
		_, err = os.Stdout.Write(append(payload, '\n'))
		return err
	}
	return atomic.WriteFile(flagTaskOutput, strings.NewReader(string(payload)))
}

func waitForTerminal(ctx context.Context, o *orchestrator.Orchestrator, taskID string) (*model.Task, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		task, err := o.GetTask(taskID)
		if err != nil {
			return nil, err
		}
		switch task.Status {
		case model.TaskCompleted, model.TaskFailed, model.TaskCancelled:
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

func readTaskInput(path string) (*orchestrator.CreateTaskInput, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var input orchestrator.CreateTaskInput
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, fmt.Errorf("parse task input: %w", err)
	}
	return &input, nil
}
