package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/learnmate-backend/internal/app"
	"github.com/yungbote/learnmate-backend/internal/services"
)

func generateCMD(cfgPath *string) *cobra.Command {
	var req services.GenerateRequest
	var user string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one curriculum and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.Topic) == "" {
				return fmt.Errorf("--topic is required")
			}
			userID := uuid.Nil
			if user != "" {
				id, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				userID = id
			}
			a, err := bootstrap(cmd.Context(), *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Curricula.Generate(cmd.Context(), userID, req)
			if err != nil {
				return err
			}
			return printJSON(res.Curriculum)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Topic, "topic", "", "learning topic")
	f.StringVar(&req.Constraints, "constraints", "", "free-text constraints, e.g. \"주 10시간, 6주\"")
	f.StringVar(&req.Goal, "goal", "", "learning goal")
	f.StringVar(&req.SessionID, "session", "", "session id (generated when empty)")
	f.StringVar(&user, "user", "", "owner user id")
	return cmd
}

func generateAllCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-all",
		Short: "Generate curricula for every completed assessment session without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			out, err := a.Curricula.GenerateAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
