package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

var listFilter string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions across every known container and bridge",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listFilter, "filter", "", "attention|running|idle")
}

type containerList struct {
	Containers []model.Container `json:"containers"`
}

type sessionList struct {
	Sessions []model.TmuxSession `json:"sessions"`
}

// sessionState classifies a session the way `list --filter` expects:
// attention beats running, since a session with an unread bell is the one
// an operator wants surfaced even if it's also attached.
func sessionState(s model.TmuxSession) string {
	for _, w := range s.Windows {
		if w.Bell || w.Activity {
			return "attention"
		}
	}
	if s.Attached {
		return "running"
	}
	return "idle"
}

func runList(cmd *cobra.Command, args []string) error {
	if listFilter != "" && listFilter != "attention" && listFilter != "running" && listFilter != "idle" {
		fmt.Fprintf(os.Stderr, "invalid --filter %q: must be attention, running, or idle\n", listFilter)
		os.Exit(64)
	}

	c := client()
	ctx := cmd.Context()

	var containers containerList
	if err := c.GetJSON(ctx, "/containers", &containers); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperr.ExitCode(err))
	}

	type row struct {
		id, state, container string
		windows              int
	}
	var rows []row
	for _, cont := range containers.Containers {
		var sessions sessionList
		if err := c.GetJSON(ctx, "/containers/"+cont.ID+"/sessions", &sessions); err != nil {
			continue
		}
		for _, sess := range sessions.Sessions {
			state := sessionState(sess)
			if listFilter != "" && state != listFilter {
				continue
			}
			rows = append(rows, row{
				id:        cont.ID + "/" + sess.Name,
				state:     state,
				container: cont.DisplayName,
				windows:   len(sess.Windows),
			})
		}
	}

	if len(rows) == 0 {
		return nil
	}
	fmt.Printf("%-40s %-10s %-20s %s\n", "SESSION", "STATE", "CONTAINER", "WINDOWS")
	for _, r := range rows {
		fmt.Printf("%-40s %-10s %-20s %d\n", r.id, r.state, r.container, r.windows)
	}
	return nil
}

// splitSessionID parses "<containerId>/<sessionName>" as produced by list.
func splitSessionID(sessionID string) (containerID, sessionName string, err error) {
	parts := strings.SplitN(sessionID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperr.New(apperr.InvalidArgument, "sessionId must be <containerId>/<sessionName>")
	}
	return parts[0], parts[1], nil
}
