// Package spawn implements the shell spawner from spec §4.B: it opens a
// PTY, applies environment scrubbing/defaults/overrides, and execs the
// configured shell, exec command, or login program, mirroring
// arcterm.c's setup_shell/get_shellenv and the teacher's
// pty.StartWithSize usage.
package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strconv"
	"strings"

	"github.com/creack/pty"
	"github.com/google/shlex"

	"afsrvterm/internal/argload"
)

// scrubbedVars are unset in the child's environment before it execs
// (spec §4.B step 1 / arcterm.c setup_shell's "unset" table).
var scrubbedVars = []string{
	"COLUMNS", "LINES", "TERMCAP",
	"ARCAN_ARG", "ARCAN_APPLPATH", "ARCAN_APPLTEMPPATH",
	"ARCAN_FRAMESERVER_LOGDIR", "ARCAN_RESOURCEPATH",
	"ARCAN_SHMKEY", "ARCAN_SOCKIN_FD", "ARCAN_STATEPATH",
}

// Child is a spawned shell/command behind a PTY.
type Child struct {
	Master *os.File
	Cmd    *exec.Cmd
	Pid    int
}

// Env describes the environment-variable overrides and rendezvous
// descriptors that spec §6 documents as process-level input, separate from
// the packed ARCAN_ARG string.
type Env struct {
	TerminalExec    string // ARCAN_TERMINAL_EXEC
	TerminalArgv    string // ARCAN_TERMINAL_ARGV
	PidfdIn         string // ARCAN_TERMINAL_PIDFD_IN (fd number, as string)
	PidfdOut        string // ARCAN_TERMINAL_PIDFD_OUT (fd number, as string)
}

// EnvFromOS reads the ARCAN_TERMINAL_* environment variables from the
// current process environment.
func EnvFromOS() Env {
	return Env{
		TerminalExec: os.Getenv("ARCAN_TERMINAL_EXEC"),
		TerminalArgv: os.Getenv("ARCAN_TERMINAL_ARGV"),
		PidfdIn:      os.Getenv("ARCAN_TERMINAL_PIDFD_IN"),
		PidfdOut:     os.Getenv("ARCAN_TERMINAL_PIDFD_OUT"),
	}
}

// Spawn allocates a PTY sized rows x cols and execs the configured child
// per spec §4.B's priority order.
func Spawn(a argload.Args, env Env, rows, cols int) (*Child, error) {
	argv, err := buildArgv(a, env)
	if err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = buildChildEnv(a)
	if a.Chdir != "" {
		cmd.Dir = a.Chdir
	}

	// Open question resolution (DESIGN.md): os/exec performs fork+exec as a
	// single syscall with no child-side pre-exec hook, so the child-side
	// "reset every signal to default" step (spec §4.B step 5) has no direct
	// translation; we instead make sure no inherited signal.Notify
	// registration from this process leaks into the child's disposition
	// table by resetting ours around Start.
	signalReset := resetSignalsAround()
	defer signalReset()

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("spawn: start command: %w", err)
	}

	child := &Child{Master: master, Cmd: cmd, Pid: cmd.Process.Pid}

	if env.PidfdIn != "" && env.PidfdOut != "" {
		if err := pidfdRendezvous(child.Pid, env.PidfdIn, env.PidfdOut); err != nil {
			master.Close()
			return nil, fmt.Errorf("spawn: pidfd rendezvous: %w", err)
		}
	}

	return child, nil
}

// buildArgv resolves spec §4.B step 6's priority order into an argv slice
// ready for exec.Command.
func buildArgv(a argload.Args, env Env) ([]string, error) {
	execArg := env.TerminalExec
	if a.ExecCmd != "" {
		execArg = a.ExecCmd
	}

	if execArg != "" {
		if env.TerminalArgv != "" {
			argv, err := shlex.Split(env.TerminalArgv)
			if err != nil {
				return nil, fmt.Errorf("ARCAN_TERMINAL_ARGV: %w", err)
			}
			if len(argv) == 0 {
				return nil, fmt.Errorf("ARCAN_TERMINAL_ARGV: empty argv")
			}
			// execvp-style: the exec value is the program, looked up on PATH;
			// it takes the place of the first ARCAN_TERMINAL_ARGV element.
			return append([]string{execArg}, argv[1:]...), nil
		}
		return []string{"/bin/sh", "-c", execArg}, nil
	}

	if a.Login != nil {
		login, err := findLogin()
		if err != nil {
			return nil, err
		}
		return []string{login, "-p"}, nil
	}

	shellPath := defaultShell()
	argv := []string{shellPath, "-i"}
	if a.Cmd != "" {
		argv = append(argv, a.Cmd)
	}
	return argv, nil
}

func findLogin() (string, error) {
	for _, p := range []string{"/bin/login", "/usr/bin/login"} {
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("login prompt requested but none was found")
}

// buildChildEnv applies spec §4.B steps 1-4: scrub, defaults, user context,
// then "env" overrides.
func buildChildEnv(a argload.Args) []string {
	kept := make([]string, 0, len(os.Environ()))
	scrub := make(map[string]bool, len(scrubbedVars))
	for _, v := range scrubbedVars {
		scrub[v] = true
	}
	for _, e := range os.Environ() {
		key, _, _ := strings.Cut(e, "=")
		if !scrub[key] {
			kept = append(kept, e)
		}
	}

	env := newEnvSet(kept)
	env.setDefault("LANG", "en_GB.UTF-8")
	env.setDefault("LC_CTYPE", "en_GB.UTF-8")
	if runtime.GOOS == "openbsd" {
		env.set("TERM", "wsvt25")
	} else {
		env.set("TERM", "xterm-256color")
	}

	if u, err := user.Current(); err == nil {
		env.set("LOGNAME", u.Username)
		env.set("USER", u.Username)
		env.setDefault("HOME", u.HomeDir)
	}
	if shell := defaultShell(); shell != "" {
		env.setDefault("SHELL", shell)
	}

	for _, kv := range a.Env {
		key, val, _ := strings.Cut(kv, "=")
		env.set(key, val)
	}

	return env.list()
}

// defaultShell mirrors arcterm.c's get_shellenv: the user database's shell,
// falling back to SHELL, falling back to /bin/sh.
func defaultShell() string {
	if u, err := user.Current(); err == nil {
		if sh := passwdShell(u); sh != "" {
			return sh
		}
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// passwdShell returns u's login shell from /etc/passwd, or "" when the file
// cannot be read or has no entry for u.
func passwdShell(u *user.User) string {
	data, err := os.ReadFile("/etc/passwd")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) == 7 && fields[0] == u.Username {
			return fields[6]
		}
	}
	return ""
}

// pidfdRendezvous performs the launcher handshake spec §4.B step 6 and
// SPEC_FULL.md §5 describe: the pid is written to PIDFD_OUT and a single
// rendezvous byte is read (and discarded, per spec §9's open question) from
// PIDFD_IN. os/exec execs the child before this function can run inside
// it, so the handshake is performed here, in the parent, immediately after
// Start — functionally equivalent from the launcher's point of view, which
// only observes "child pid is known, then launcher unblocks it".
func pidfdRendezvous(pid int, inVar, outVar string) error {
	outFd, err := strconv.Atoi(outVar)
	if err != nil {
		return fmt.Errorf("ARCAN_TERMINAL_PIDFD_OUT: %w", err)
	}
	inFd, err := strconv.Atoi(inVar)
	if err != nil {
		return fmt.Errorf("ARCAN_TERMINAL_PIDFD_IN: %w", err)
	}

	out := os.NewFile(uintptr(outFd), "pidfd-out")
	in := os.NewFile(uintptr(inFd), "pidfd-in")
	defer out.Close()
	defer in.Close()

	pidBuf := []byte(strconv.Itoa(pid))
	if _, err := out.Write(pidBuf); err != nil {
		return err
	}
	discard := make([]byte, 1)
	_, _ = in.Read(discard) // value is pure rendezvous, never interpreted
	return nil
}
