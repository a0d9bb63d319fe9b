package engine

import (
	"context"
	"strings"

	execute "github.com/alexellis/go-execute/v2"
)

// Result is the outcome of running an external program to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Diagnostics is what the program had to say: stderr, or stdout when stderr is empty.
func (r Result) Diagnostics() string {
	if strings.TrimSpace(r.Stderr) != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner runs an external program and blocks until it exits.
// An error means the program could not be run at all; a program that ran and
// failed reports a non-zero ExitCode instead.
type Runner interface {
	Run(ctx context.Context, command string, args []string) (Result, error)
}

// ExecRunner runs programs as child processes.
type ExecRunner struct {
	// Cwd is the working directory for the child; empty uses ours.
	Cwd string
}

func (r ExecRunner) Run(ctx context.Context, command string, args []string) (Result, error) {
	task := execute.ExecTask{
		Command: command,
		Args:    args,
		Cwd:     r.Cwd,
	}

	res, err := task.Execute(ctx)
	out := Result{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	if err != nil && res.ExitCode <= 0 {
		return out, err
	}
	return out, nil
}

// Engine describes how the randomizer jar is launched.
type Engine struct {
	Java string // java executable
	Heap string // maximum heap passed as -Xmx
	Jar  string // path to the randomizer jar
	Mode string // randomizer invocation mode, "cli"
}

// DefaultEngine matches the layout the service is deployed with.
var DefaultEngine = Engine{
	Java: "java",
	Heap: "2048M",
	Jar:  "randomizer/PokeRandoZX.jar",
	Mode: "cli",
}

// Invocation is one randomizer run: settings file, input ROM and output ROM paths.
type Invocation struct {
	Config string
	Input  string
	Output string
}

// Command returns the program and arguments that perform inv.
func (e Engine) Command(inv Invocation) (string, []string) {
	java := e.Java
	if java == "" {
		java = DefaultEngine.Java
	}
	mode := e.Mode
	if mode == "" {
		mode = DefaultEngine.Mode
	}

	args := make([]string, 0, 10)
	if e.Heap != "" {
		args = append(args, "-Xmx"+e.Heap)
	}
	args = append(args,
		"-jar", e.Jar, mode,
		"-s", inv.Config,
		"-i", inv.Input,
		"-o", inv.Output,
	)
	return java, args
}
