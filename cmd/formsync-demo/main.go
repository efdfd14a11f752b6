package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ngx-vest-forms/formsync"
	"github.com/ngx-vest-forms/formsync/logging"
	"github.com/ngx-vest-forms/formsync/storage/sqlite"
	"github.com/ngx-vest-forms/formsync/validators/structval"
)

type profileSchema struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
	Bio   string `json:"bio" validate:"omitempty,max=200"`
}

func main() {
	// Initialize structured logging from environment
	config := logging.GetConfigFromEnv()
	logging.Init(config)

	ctx := context.Background()

	logging.Info("Form synchronization demo starting",
		slog.String("environment", config.Environment),
		slog.Time("start_time", time.Now()),
	)

	// Draft autosave backend
	dir, err := os.MkdirTemp("", "formsync-demo")
	if err != nil {
		logging.Error("Failed to create temp directory", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	store, err := sqlite.NewWithDataSource(filepath.Join(dir, "drafts.db"))
	if err != nil {
		logging.Error("Failed to open draft store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	coordinator, err := formsync.NewCoordinator(
		map[string]any{"name": "", "email": "", "bio": "server seeded"},
		formsync.WithValidateFunc(structval.ValidateFuncFor[profileSchema](
			structval.WithWarningTags("max"),
		)),
		formsync.WithDebounceInterval(100*time.Millisecond),
		formsync.WithMergeOptions(formsync.MergeOptions{
			Strategy:           formsync.MergeSmart,
			PreserveFields:     []string{"bio"},
			ConflictResolution: true,
			OnConflict: func(local, external formsync.ModelValue) formsync.ConflictDecision {
				return formsync.PromptUser()
			},
		}),
		formsync.WithAutosave(store, "profile-demo"),
		formsync.WithLogger(logging.Default().Logger),
	)
	if err != nil {
		logging.Error("Failed to create coordinator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer coordinator.Close()

	coordinator.Subscribe(func(model formsync.ModelValue) {
		logging.Debug("Model published", slog.Any("model", model))
	})
	coordinator.SubscribeResult(func(result formsync.Result) {
		logging.Debug("Validation state changed",
			slog.Bool("valid", result.Valid()),
			slog.Bool("pending", result.Pending()),
		)
	})

	// Simulate a user typing: rapid edits collapse into one validation run
	coordinator.SetField("name", "A")
	coordinator.SetField("name", "Ad")
	coordinator.SetField("name", "Ada")
	coordinator.SetField("email", "ada@example.com")

	// An external refresh arrives while the user is mid-edit
	coordinator.ApplyExternal(map[string]any{
		"name":  "Ada",
		"email": "ada@example.com",
		"bio":   "updated on another device",
	})

	if rec := coordinator.Conflict(); rec != nil {
		logging.Info("Conflict detected, resolving with merge",
			slog.Time("detected_at", rec.Timestamp))
		coordinator.ResolveConflict(formsync.ResolveMerge)
	}

	model, err := coordinator.Submit(ctx)
	if err != nil {
		logging.Error("Submit rejected", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logging.Info("Submit accepted", slog.Any("model", model))

	// Show the autosaved draft trail
	drafts, err := store.List(ctx, "profile-demo", 3)
	if err != nil {
		logging.Error("Failed to list drafts", slog.String("error", err.Error()))
		os.Exit(1)
	}
	for _, draft := range drafts {
		fmt.Printf("draft revision=%d saved_at=%s\n",
			draft.Revision, draft.SavedAt.Format(time.RFC3339))
	}

	logging.Info("Demo completed")
}
