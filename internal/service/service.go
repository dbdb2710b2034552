// Package service installs "helpem serve" as a macOS launchd agent.
package service

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/joho/godotenv"

	"github.com/chris/helpem/config"
)

const Label = "com.helpem.server"

// Launchd manages the agent. Paths are fields so tests can point them at a
// temporary directory.
type Launchd struct {
	BinPath   string // where the binary is installed
	ConfigDir string // ~/.helpem
	AgentsDir string // ~/Library/LaunchAgents
	LogDir    string // ~/Library/Logs
	Out       io.Writer

	// run executes a command and returns its combined output.
	run func(name string, args ...string) ([]byte, error)
}

func New(out io.Writer) *Launchd {
	home, _ := os.UserHomeDir()
	return &Launchd{
		BinPath:   "/usr/local/bin/helpem",
		ConfigDir: config.Dir(),
		AgentsDir: filepath.Join(home, "Library", "LaunchAgents"),
		LogDir:    filepath.Join(home, "Library", "Logs"),
		Out:       out,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		},
	}
}

func (l *Launchd) plistPath() string  { return filepath.Join(l.AgentsDir, Label+".plist") }
func (l *Launchd) configFile() string { return filepath.Join(l.ConfigDir, "config") }
func (l *Launchd) stdoutLog() string  { return filepath.Join(l.LogDir, "helpem-stdout.log") }
func (l *Launchd) stderrLog() string  { return filepath.Join(l.LogDir, "helpem-stderr.log") }

// Install copies the running binary to BinPath, seeds the config file from
// ./.env when there is none, writes the plist and loads it.
func (l *Launchd) Install() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return fmt.Errorf("resolving symlinks: %w", err)
	}
	return l.install(exe, ".env")
}

func (l *Launchd) install(exe, dotenv string) error {
	if err := copyFile(exe, l.BinPath, 0o755); err != nil {
		return fmt.Errorf("installing binary: %w", err)
	}
	fmt.Fprintf(l.Out, "installed binary to %s\n", l.BinPath)

	if _, err := os.Stat(l.configFile()); os.IsNotExist(err) {
		if data, err := os.ReadFile(dotenv); err == nil {
			if err := os.MkdirAll(l.ConfigDir, 0o700); err != nil {
				return fmt.Errorf("creating config dir: %w", err)
			}
			if err := os.WriteFile(l.configFile(), data, 0o600); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Fprintf(l.Out, "seeded config from %s -> %s\n", dotenv, l.configFile())
		}
	} else {
		fmt.Fprintf(l.Out, "config already exists at %s\n", l.configFile())
	}

	plist, err := l.renderPlist(l.workDir())
	if err != nil {
		return fmt.Errorf("generating plist: %w", err)
	}
	if _, err := os.Stat(l.plistPath()); err == nil {
		_ = l.launchctl("unload", l.plistPath())
	}
	if err := os.MkdirAll(l.AgentsDir, 0o755); err != nil {
		return fmt.Errorf("creating LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(l.plistPath(), []byte(plist), 0o644); err != nil {
		return fmt.Errorf("writing plist: %w", err)
	}
	fmt.Fprintf(l.Out, "wrote plist to %s\n", l.plistPath())

	if err := l.launchctl("load", l.plistPath()); err != nil {
		return fmt.Errorf("loading plist: %w", err)
	}
	fmt.Fprintln(l.Out, "service loaded and will start on login")
	return nil
}

// workDir is the current directory when the configured sqlite path is
// relative, otherwise the config dir.
func (l *Launchd) workDir() string {
	vars, _ := godotenv.Read(l.configFile())
	if p, ok := vars["DATABASE_PATH"]; ok && !filepath.IsAbs(p) {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return l.ConfigDir
}

// Uninstall unloads and removes the plist and the installed binary.
func (l *Launchd) Uninstall() error {
	if _, err := os.Stat(l.plistPath()); err == nil {
		if err := l.launchctl("unload", l.plistPath()); err != nil {
			fmt.Fprintf(l.Out, "warning: unload failed: %v\n", err)
		}
		if err := os.Remove(l.plistPath()); err != nil {
			return fmt.Errorf("removing plist: %w", err)
		}
		fmt.Fprintf(l.Out, "removed %s\n", l.plistPath())
	}
	if _, err := os.Stat(l.BinPath); err == nil {
		if err := os.Remove(l.BinPath); err != nil {
			return fmt.Errorf("removing binary: %w", err)
		}
		fmt.Fprintf(l.Out, "removed %s\n", l.BinPath)
	}
	fmt.Fprintln(l.Out, "uninstalled")
	return nil
}

func (l *Launchd) Start() error { return l.launchctl("start", Label) }

func (l *Launchd) Stop() error { return l.launchctl("stop", Label) }

func (l *Launchd) Restart() error {
	_ = l.Stop()
	return l.Start()
}

func (l *Launchd) Status() error {
	out, err := l.run("launchctl", "list", Label)
	if err != nil {
		fmt.Fprintln(l.Out, "service is not loaded")
		return nil
	}
	_, err = l.Out.Write(out)
	return err
}

// Logs follows both log files until interrupted.
func (l *Launchd) Logs() error {
	cmd := exec.Command("tail", "-f", l.stdoutLog(), l.stderrLog())
	cmd.Stdout = l.Out
	cmd.Stderr = l.Out
	return cmd.Run()
}

func (l *Launchd) launchctl(args ...string) error {
	if out, err := l.run("launchctl", args...); err != nil {
		return fmt.Errorf("launchctl %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, perm)
}

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinPath}}</string>
		<string>serve</string>
	</array>
	<key>WorkingDirectory</key>
	<string>{{.WorkDir}}</string>
	<key>EnvironmentVariables</key>
	<dict>
		<key>LOG_FORMAT</key>
		<string>json</string>
	</dict>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.StdoutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{.StderrLog}}</string>
</dict>
</plist>
`))

func (l *Launchd) renderPlist(workDir string) (string, error) {
	var buf bytes.Buffer
	err := plistTemplate.Execute(&buf, struct {
		Label, BinPath, WorkDir, StdoutLog, StderrLog string
	}{Label, l.BinPath, workDir, l.stdoutLog(), l.stderrLog()})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
