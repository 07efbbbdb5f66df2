// Command taskforge is a thin CLI client for the taskforge server's JSON API.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/taskforge-ai/taskforge/internal/agent"
	"github.com/taskforge-ai/taskforge/internal/dispatch"
	"github.com/taskforge-ai/taskforge/internal/task"
)

var (
	app       = kingpin.New("taskforge", "Recursive task decomposition and agent dispatch")
	serverURL = app.Flag("server", "Server base URL").Envar("TASKFORGE_SERVER_URL").Default("http://localhost:3200").String()
	apiKey    = app.Flag("api-key", "API key").Envar("TASKFORGE_API_KEY").Required().String()

	decomposeCmd      = app.Command("decompose", "Decompose a task into atomic subtasks")
	decomposeTitle    = decomposeCmd.Arg("title", "Task title").Required().String()
	decomposeDesc     = decomposeCmd.Flag("description", "Task description").String()
	decomposeType     = decomposeCmd.Flag("type", "Task type").Default("development").String()
	decomposePriority = decomposeCmd.Flag("priority", "Task priority").Default("medium").String()
	decomposeProject  = decomposeCmd.Flag("project", "Project id").String()
	decomposeContext  = decomposeCmd.Flag("context", "Project context passed to the engine").String()
	decomposePersist  = decomposeCmd.Flag("persist", "Store the resulting atomic tasks").Bool()

	tasksCmd       = app.Command("tasks", "Task commands")
	tasksListCmd   = tasksCmd.Command("list", "List stored tasks")
	tasksListProj  = tasksListCmd.Flag("project", "Filter by project id").String()
	tasksListState = tasksListCmd.Flag("status", "Filter by status").String()
	tasksShowCmd   = tasksCmd.Command("show", "Show one task")
	tasksShowID    = tasksShowCmd.Arg("id", "Task ID").Required().String()

	agentsCmd        = app.Command("agents", "Agent commands")
	agentsListCmd    = agentsCmd.Command("list", "List online agents")
	agentsAddCmd     = agentsCmd.Command("register", "Register an agent")
	agentsAddID      = agentsAddCmd.Arg("id", "Agent ID").Required().String()
	agentsAddCaps    = agentsAddCmd.Flag("capability", "Capability (repeatable)").Required().Strings()
	agentsAddTrans   = agentsAddCmd.Flag("transport", "Transport (stdio, sse, websocket, http)").Default("http").String()
	agentsAddSession = agentsAddCmd.Flag("session", "Session ID").Required().String()
	agentsAddMax     = agentsAddCmd.Flag("max-tasks", "Max concurrent tasks").Default("3").Int()
	agentsRmCmd      = agentsCmd.Command("unregister", "Unregister an agent")
	agentsRmID       = agentsRmCmd.Arg("id", "Agent ID").Required().String()

	dispatchCmd  = app.Command("dispatch", "Dispatch a stored task to the best agent")
	dispatchID   = dispatchCmd.Arg("id", "Task ID").Required().String()
	dispatchCaps = dispatchCmd.Flag("capability", "Required capability (repeatable)").Strings()

	eventsCmd = app.Command("events", "Tail the server event stream")

	pushTestCmd = app.Command("push-test", "Send a test push notification")
)

var (
	bold    = color.New(color.Bold)
	green   = color.New(color.FgGreen)
	yellow  = color.New(color.FgYellow)
	redText = color.New(color.FgRed)
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := &client{base: strings.TrimRight(*serverURL, "/"), key: *apiKey}
	var err error
	switch command {
	case decomposeCmd.FullCommand():
		err = runDecompose(c)
	case tasksListCmd.FullCommand():
		err = runTasksList(c)
	case tasksShowCmd.FullCommand():
		err = runTasksShow(c)
	case agentsListCmd.FullCommand():
		err = runAgentsList(c)
	case agentsAddCmd.FullCommand():
		err = runAgentsRegister(c)
	case agentsRmCmd.FullCommand():
		err = c.call(http.MethodDelete, "/api/agents/"+*agentsRmID, nil, nil)
	case dispatchCmd.FullCommand():
		err = runDispatch(c)
	case eventsCmd.FullCommand():
		err = runEvents(c)
	case pushTestCmd.FullCommand():
		err = c.call(http.MethodPost, "/api/push/test", struct{}{}, nil)
	}
	if err != nil {
		redText.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	key  string
}

func (c *client) call(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details []struct {
				Message string `json:"message"`
			} `json:"details"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			msg := apiErr.Message
			for _, d := range apiErr.Details {
				msg += "; " + d.Message
			}
			return fmt.Errorf("%s (%s)", msg, apiErr.Code)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runDecompose(c *client) error {
	req := map[string]any{
		"task": &task.AtomicTask{
			Title:       *decomposeTitle,
			Description: *decomposeDesc,
			Type:        task.Type(*decomposeType),
			Priority:    task.Priority(*decomposePriority),
			ProjectID:   *decomposeProject,
		},
		"projectContext": *decomposeContext,
		"persist":        *decomposePersist,
	}
	var resp struct {
		AtomicTasks []*task.AtomicTask `json:"atomicTasks"`
	}
	if err := c.call(http.MethodPost, "/api/decompose", req, &resp); err != nil {
		return err
	}

	bold.Printf("%d atomic task(s)\n", len(resp.AtomicTasks))
	for _, t := range resp.AtomicTasks {
		printTaskLine(t)
	}
	return nil
}

func printTaskLine(t *task.AtomicTask) {
	fmt.Printf("  %s  %s  %s  %.2fh  %s\n",
		green.Sprint(t.ID), t.Title, yellow.Sprint(t.Priority), t.EstimatedHours, t.Status)
}

func runTasksList(c *client) error {
	path := fmt.Sprintf("/api/tasks?projectId=%s&status=%s", *tasksListProj, *tasksListState)
	var resp struct {
		Tasks []*task.AtomicTask `json:"tasks"`
		Total int                `json:"total"`
	}
	if err := c.call(http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	bold.Printf("%d task(s)\n", resp.Total)
	for _, t := range resp.Tasks {
		printTaskLine(t)
	}
	return nil
}

func runTasksShow(c *client) error {
	var t task.AtomicTask
	if err := c.call(http.MethodGet, "/api/tasks/"+*tasksShowID, nil, &t); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&t, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runAgentsList(c *client) error {
	var resp struct {
		Agents []*agent.Registration `json:"agents"`
	}
	if err := c.call(http.MethodGet, "/api/agents", nil, &resp); err != nil {
		return err
	}
	bold.Printf("%d agent(s) online\n", len(resp.Agents))
	for _, a := range resp.Agents {
		fmt.Printf("  %s  %s  %s  %d/%d tasks  [%s]\n",
			green.Sprint(a.ID), a.Status, a.Transport, a.CurrentTaskCount, a.MaxConcurrentTasks,
			strings.Join(a.Capabilities, ", "))
	}
	return nil
}

func runAgentsRegister(c *client) error {
	reg := &agent.Registration{
		ID:                 *agentsAddID,
		Capabilities:       *agentsAddCaps,
		Transport:          agent.Transport(*agentsAddTrans),
		SessionID:          *agentsAddSession,
		MaxConcurrentTasks: *agentsAddMax,
	}
	var stored agent.Registration
	if err := c.call(http.MethodPost, "/api/agents", reg, &stored); err != nil {
		return err
	}
	green.Printf("registered %s (%s)\n", stored.ID, stored.Transport)
	return nil
}

func runDispatch(c *client) error {
	var t task.AtomicTask
	if err := c.call(http.MethodGet, "/api/tasks/"+*dispatchID, nil, &t); err != nil {
		return err
	}
	var assignment dispatch.TaskAssignment
	req := map[string]any{
		"task":                 &t,
		"requiredCapabilities": *dispatchCaps,
	}
	if err := c.call(http.MethodPost, "/api/dispatch", req, &assignment); err != nil {
		return err
	}
	green.Printf("assigned %s to %s (assignment %s)\n", assignment.TaskID, assignment.AgentID, assignment.AssignmentID)
	return nil
}

func runEvents(c *client) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.key)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := (&http.Client{Timeout: 0}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	bold.Println("listening for events (ctrl-c to stop)")
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Type       string    `json:"type"`
			ResourceID string    `json:"resource_id"`
			Payload    string    `json:"payload"`
			CreatedAt  time.Time `json:"created_at"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		fmt.Printf("%s  %s  %s  %s\n",
			ev.CreatedAt.Format(time.TimeOnly), yellow.Sprint(ev.Type), ev.ResourceID, ev.Payload)
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}
