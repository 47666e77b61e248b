package main

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/zsprackett/agent-pulse/internal/activity"
	"github.com/zsprackett/agent-pulse/internal/config"
	"github.com/zsprackett/agent-pulse/internal/hook"
)

var serverURL string

var hookCmd = &cobra.Command{
	Use:   "hook [event]",
	Short: "Forward a Claude Code hook payload from stdin to the relay",
	Long: `Reads the JSON payload Claude Code passes to hook commands on stdin and
posts the matching event to a running relay. The optional event argument
overrides hook_event_name. Failures are reported on stderr but never fail the
hook, so a stopped relay does not interrupt the agent.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHook,
}

var stateWatch bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the relay's current mode",
	Args:  cobra.NoArgs,
	RunE:  runState,
}

func init() {
	for _, c := range []*cobra.Command{hookCmd, stateCmd} {
		c.Flags().StringVar(&serverURL, "url", "", "relay base URL (default from config)")
	}
	stateCmd.Flags().BoolVarP(&stateWatch, "watch", "w", false, "stream changes over the websocket")
}

// baseURL is the loopback address of the relay described by cfg.
func baseURL(cfg config.Config) string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	scheme := "http"
	if cfg.TLS.Mode != "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://127.0.0.1:%d", scheme, cfg.Port)
}

func httpClient(cfg config.Config) *http.Client {
	c := &http.Client{Timeout: 2 * time.Second}
	if cfg.TLS.Mode == "self-signed" {
		c.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return c
}

func runHook(cmd *cobra.Command, args []string) {
	eventName := ""
	if len(args) == 1 {
		eventName = args[0]
	}
	if err := forwardHook(cmd.InOrStdin(), eventName); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "agent-pulse: %v\n", err)
	}
}

func forwardHook(stdin io.Reader, eventName string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := hook.FromClaudeInput(stdin, eventName)
	if err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	resp, err := httpClient(cfg).Post(baseURL(cfg)+"/hook", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post hook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post hook: unexpected status %s", resp.Status)
	}
	return nil
}

type stateResponse struct {
	Mode activity.Mode `json:"mode"`
	Ts   int64         `json:"ts"`
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if stateWatch {
		return watchState(cmd.OutOrStdout(), cfg)
	}

	resp, err := httpClient(cfg).Get(baseURL(cfg) + "/api/state")
	if err != nil {
		return fmt.Errorf("query state: %w", err)
	}
	defer resp.Body.Close()
	var st stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), st.Mode)
	return nil
}

func watchState(out io.Writer, cfg config.Config) error {
	u, err := url.Parse(baseURL(cfg))
	if err != nil {
		return err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {cfg.Token}}.Encode()

	dialer := *websocket.DefaultDialer
	if cfg.TLS.Mode == "self-signed" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	hello, _ := json.Marshal(map[string]string{
		"type":    "hello",
		"client":  "agent-pulse-cli",
		"version": version,
		"token":   cfg.Token,
	})
	conn.WriteMessage(websocket.TextMessage, hello)

	var prev *activity.StateMessage
	for {
		var msg activity.StateMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, 4001) {
				return fmt.Errorf("relay rejected token")
			}
			return err
		}
		fmt.Fprintln(out, describeChange(prev, msg))
		prev = &msg
	}
}

// describeChange formats one line of `state --watch` output.
func describeChange(prev *activity.StateMessage, cur activity.StateMessage) string {
	at := time.UnixMilli(cur.Timestamp)
	line := at.Format("15:04:05") + " " + string(cur.Mode)
	if prev == nil {
		return line
	}
	since := time.UnixMilli(prev.Timestamp)
	held := "under a second"
	if at.Sub(since) >= time.Second {
		held = strings.TrimSpace(humanize.RelTime(since, at, "", ""))
	}
	return line + " (" + string(prev.Mode) + " for " + held + ")"
}
