// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container runs external command-line tools, either straight from
// the host PATH or inside a docker/podman image when the host lacks them.
package container

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

const (
	binDocker = "docker"
	binPodman = "podman"

	// workDir is where Invocation.Dir is mounted inside a container.
	workDir = "/work"
)

// Invocation describes one run of a tool.
type Invocation struct {
	// Args are passed to the tool after its name or image.
	Args []string

	// Dir is a host directory used as the working directory. Inside a
	// container it is mounted read-only, so Args should refer to files in it
	// by relative path.
	Dir string

	Stdin  io.Reader
	Stdout io.Writer
}

// Tool is a runnable program.
type Tool interface {
	// Name describes the tool and where it runs (e.g. "pandoc" or
	// "pandoc/core via docker").
	Name() string

	// Run executes the tool and waits for it to exit.
	Run(ctx context.Context, inv Invocation) error
}

// Runtime provides container operations: checking availability, verifying
// images, and running containers.
type Runtime interface {
	// Name returns the runtime name ("docker" or "podman").
	Name() string

	// Available reports whether the runtime binary exists on PATH and
	// responds to an info command.
	Available() bool

	// ImageExists checks whether the named image exists locally.
	ImageExists(image string) error

	// Run executes a container of image with inv.Dir mounted as its working
	// directory, piping stdin and stdout.
	Run(ctx context.Context, image string, inv Invocation) error
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
	RunPiped(ctx context.Context, name string, args []string, dir string, stdin io.Reader, stdout io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func (o *osExecutor) RunPiped(ctx context.Context, name string, args []string, dir string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	return cmd.Run()
}

// runtime implements Runtime for a specific container binary. Docker and
// Podman differ only in binary name and the image check subcommand.
type runtime struct {
	bin           string
	imageCheckCmd []string // e.g. ["image", "inspect"] for docker
	exec          executor
}

func (r *runtime) Name() string { return r.bin }

func (r *runtime) Available() bool {
	if _, err := r.exec.LookPath(r.bin); err != nil {
		return false
	}
	return r.exec.RunSilent(r.bin, "info") == nil
}

func (r *runtime) ImageExists(image string) error {
	args := make([]string, 0, len(r.imageCheckCmd)+1)
	args = append(args, r.imageCheckCmd...)
	args = append(args, image)

	if err := r.exec.RunSilent(r.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, r.bin, err)
	}
	return nil
}

func (r *runtime) Run(ctx context.Context, image string, inv Invocation) error {
	args := []string{"run", "--rm", "-i"}
	if inv.Dir != "" {
		args = append(args, "-v", inv.Dir+":"+workDir+":ro", "-w", workDir)
	}
	args = append(args, image)
	args = append(args, inv.Args...)
	if err := r.exec.RunPiped(ctx, r.bin, args, "", inv.Stdin, inv.Stdout); err != nil {
		return fmt.Errorf("running %s container %s: %w", r.bin, image, err)
	}
	return nil
}

func newDockerRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binDocker,
		imageCheckCmd: []string{"image", "inspect"},
		exec:          exec,
	}
}

func newPodmanRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binPodman,
		imageCheckCmd: []string{"image", "exists"},
		exec:          exec,
	}
}

var defaultExec = &osExecutor{}

// DetectRuntime tries docker first, falls back to podman. Returns an error
// if neither runtime is available.
func DetectRuntime() (Runtime, error) {
	return detectRuntime(defaultExec)
}

func detectRuntime(exec executor) (Runtime, error) {
	docker := newDockerRuntime(exec)
	if docker.Available() {
		return docker, nil
	}

	podman := newPodmanRuntime(exec)
	if podman.Available() {
		return podman, nil
	}

	return nil, fmt.Errorf(
		"no container runtime available: neither %s nor %s found or operational",
		binDocker, binPodman,
	)
}

// hostTool runs a binary found on PATH.
type hostTool struct {
	bin  string
	exec executor
}

func (h *hostTool) Name() string { return h.bin }

func (h *hostTool) Run(ctx context.Context, inv Invocation) error {
	if err := h.exec.RunPiped(ctx, h.bin, inv.Args, inv.Dir, inv.Stdin, inv.Stdout); err != nil {
		return fmt.Errorf("running %s: %w", h.bin, err)
	}
	return nil
}

// imageTool runs a tool packaged as a container image whose entrypoint is
// the tool itself.
type imageTool struct {
	image string
	rt    Runtime
}

func (i *imageTool) Name() string { return i.image + " via " + i.rt.Name() }

func (i *imageTool) Run(ctx context.Context, inv Invocation) error {
	return i.rt.Run(ctx, i.image, inv)
}

// FindTool locates bin on the host PATH. When it is missing and image is not
// empty, it falls back to running image through docker or podman, provided
// the image is already present locally.
func FindTool(bin, image string) (Tool, error) {
	return findTool(defaultExec, bin, image)
}

func findTool(exec executor, bin, image string) (Tool, error) {
	if bin != "" {
		if _, err := exec.LookPath(bin); err == nil {
			return &hostTool{bin: bin, exec: exec}, nil
		}
	}
	if image == "" {
		return nil, fmt.Errorf("%s not found on PATH and no container image configured", bin)
	}
	rt, err := detectRuntime(exec)
	if err != nil {
		return nil, fmt.Errorf("%s not found on PATH: %w", bin, err)
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, err
	}
	return &imageTool{image: image, rt: rt}, nil
}
