// Package pattern runs scripted lighting effects. Scripts are Lua files that
// push commands into the lighting queue, so a pattern drives the array through
// exactly the same path as a network command.
package pattern

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"prop-controller/internal/core"
)

type cmdType int

const (
	cmdRun cmdType = iota
	cmdStop
)

type engineCmd struct {
	kind cmdType
	name string
	path string
}

// Engine manages the scripting environment using a single worker goroutine so
// only one pattern runs at a time. Starting a new pattern cancels the current
// one first.
type Engine struct {
	lightingQ   *core.Queue[core.LightingCommand]
	pixelCount  int
	patternsDir string
	state       *core.State
	bus         *core.EventBus

	cmdChan chan engineCmd
}

// NewEngine creates the engine and starts its background worker.
func NewEngine(lightingQ *core.Queue[core.LightingCommand], pixelCount int, patternsDir string, state *core.State, bus *core.EventBus) *Engine {
	e := &Engine{
		lightingQ:   lightingQ,
		pixelCount:  pixelCount,
		patternsDir: patternsDir,
		state:       state,
		bus:         bus,
		cmdChan:     make(chan engineCmd, 10),
	}
	go e.runLoop()
	return e
}

// runLoop processes engine commands sequentially.
func (e *Engine) runLoop() {
	var currentCancel context.CancelFunc
	var scriptDone chan struct{}

	for cmd := range e.cmdChan {
		if currentCancel != nil {
			currentCancel()
			select {
			case <-scriptDone:
			case <-time.After(2 * time.Second):
				log.Println("[Pattern] Timeout waiting for script to stop.")
			}
			currentCancel = nil
			scriptDone = nil
		}

		if cmd.kind == cmdStop {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		currentCancel = cancel
		scriptDone = make(chan struct{})

		go e.execute(cmd.name, cmd.path, ctx, scriptDone)
	}

	if currentCancel != nil {
		currentCancel()
	}
}

// Run queues a pattern for execution, replacing any running one. The name may
// be given with or without the .lua extension.
func (e *Engine) Run(name string) error {
	path, err := e.patternPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("pattern '%s' not found", name)
	}

	select {
	case e.cmdChan <- engineCmd{kind: cmdRun, name: strings.TrimSuffix(filepath.Base(path), ".lua"), path: path}:
		return nil
	default:
		return fmt.Errorf("pattern engine busy")
	}
}

// Stop cancels the running pattern, if any.
func (e *Engine) Stop() {
	select {
	case e.cmdChan <- engineCmd{kind: cmdStop}:
	default:
		log.Println("[Pattern] Command channel full, could not send stop.")
	}
}

// List returns the available pattern names, without extension.
func (e *Engine) List() ([]string, error) {
	var patterns []string
	files, err := os.ReadDir(e.patternsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return patterns, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			patterns = append(patterns, strings.TrimSuffix(file.Name(), ".lua"))
		}
	}
	return patterns, nil
}

// Close stops the worker. Any running pattern is cancelled.
func (e *Engine) Close() {
	close(e.cmdChan)
}

// patternPath resolves a name to a file inside the patterns directory,
// rejecting traversal.
func (e *Engine) patternPath(name string) (string, error) {
	if !strings.HasSuffix(name, ".lua") {
		name += ".lua"
	}
	clean := filepath.Base(name)
	if clean == ".lua" || strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid pattern name")
	}
	return filepath.Join(e.patternsDir, clean), nil
}

func (e *Engine) execute(name, path string, ctx context.Context, done chan struct{}) {
	defer close(done)

	log.Printf("[Pattern] Starting pattern '%s'...", name)
	e.setRunning(name)
	defer func() {
		log.Printf("[Pattern] Pattern '%s' finished.", name)
		e.setRunning("")
	}()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	r := &runner{engine: e, ctx: ctx}
	r.register(L)

	if err := L.DoFile(path); err != nil {
		if ctx.Err() == context.Canceled {
			log.Printf("[Pattern] Pattern '%s' was cancelled.", name)
		} else {
			log.Printf("[Pattern] Error executing pattern '%s': %v", name, err)
		}
	}
}

func (e *Engine) setRunning(name string) {
	if e.state != nil {
		e.state.SetRunningPattern(name)
	}
	if e.bus != nil {
		e.bus.Publish(core.Event{
			Type:    core.PatternChangedEvent,
			Payload: map[string]interface{}{"running": name},
		})
	}
}
