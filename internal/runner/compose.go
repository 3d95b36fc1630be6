package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Orchestrator starts and inspects the containers under test.
type Orchestrator interface {
	// Check verifies the container tooling is installed.
	Check(ctx context.Context) error
	Up(ctx context.Context, env map[string]string) error
	Down(ctx context.Context) error
	// Running reports whether service has a running container.
	Running(ctx context.Context, service string) (bool, error)
	Status(ctx context.Context) (string, error)
	Logs(ctx context.Context, service string, tail int) (string, error)
	Exec(ctx context.Context, service string, args ...string) (string, error)
	Versions(ctx context.Context) Versions
}

// Versions holds the tool versions recorded in the report.
type Versions struct {
	Docker  string
	Compose string
}

// Compose drives a compose project through the docker CLI. It prefers the
// "docker compose" plugin and falls back to the standalone docker-compose.
type Compose struct {
	// File is passed as -f when set.
	File string
	// EnvFile is passed as --env-file when set.
	EnvFile string
	// Dir is the working directory of every command.
	Dir string

	bin []string
}

// NewCompose returns a Compose for the project file, using envFile for
// variable substitution.
func NewCompose(file, envFile string) *Compose {
	return &Compose{File: file, EnvFile: envFile}
}

func (c *Compose) Check(ctx context.Context) error {
	if _, err := exec.LookPath("docker"); err != nil {
		return errors.New("docker is not installed or not in PATH")
	}
	if _, err := run(ctx, c.Dir, nil, "docker", "compose", "version"); err == nil {
		c.bin = []string{"docker", "compose"}
		return nil
	}
	if _, err := exec.LookPath("docker-compose"); err == nil {
		c.bin = []string{"docker-compose"}
		return nil
	}
	return errors.New("docker compose is not available (tried the docker plugin and docker-compose)")
}

func (c *Compose) Up(ctx context.Context, env map[string]string) error {
	_, err := c.compose(ctx, env, "up", "-d")
	return err
}

func (c *Compose) Down(ctx context.Context) error {
	_, err := c.compose(ctx, nil, "down")
	return err
}

func (c *Compose) Running(ctx context.Context, service string) (bool, error) {
	out, err := c.compose(ctx, nil, "ps", "--services", "--filter", "status=running")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == service {
			return true, nil
		}
	}
	return false, nil
}

func (c *Compose) Status(ctx context.Context) (string, error) {
	return c.compose(ctx, nil, "ps")
}

func (c *Compose) Logs(ctx context.Context, service string, tail int) (string, error) {
	args := []string{"logs", "--no-color"}
	if tail > 0 {
		args = append(args, "--tail="+strconv.Itoa(tail))
	}
	return c.compose(ctx, nil, append(args, service)...)
}

func (c *Compose) Exec(ctx context.Context, service string, args ...string) (string, error) {
	return c.compose(ctx, nil, append([]string{"exec", "-T", service}, args...)...)
}

func (c *Compose) Versions(ctx context.Context) Versions {
	v := Versions{Docker: "Unknown", Compose: "Unknown"}
	if out, err := run(ctx, c.Dir, nil, "docker", "--version"); err == nil {
		v.Docker = out
	}
	if out, err := c.compose(ctx, nil, "version"); err == nil {
		v.Compose = out
	}
	return v
}

func (c *Compose) compose(ctx context.Context, env map[string]string, args ...string) (string, error) {
	bin := c.bin
	if len(bin) == 0 {
		bin = []string{"docker", "compose"}
	}
	full := append([]string{}, bin[1:]...)
	if c.File != "" {
		full = append(full, "-f", c.File)
	}
	if c.EnvFile != "" {
		full = append(full, "--env-file", c.EnvFile)
	}
	full = append(full, args...)
	return run(ctx, c.Dir, env, bin[0], full...)
}

func run(ctx context.Context, dir string, env map[string]string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, fmt.Errorf("%s %s failed: %w: %s", name, strings.Join(args, " "), err, text)
	}
	return text, nil
}
