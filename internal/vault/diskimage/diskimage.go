// Package diskimage drives the OS disk-image utility as a black-box
// process. The contract: create/attach/detach/imageinfo verbs, passphrases
// fed over stdin, mount paths discovered by scanning stdout for a token
// under the mount root, encryption detected by a marker string in the
// imageinfo output. Non-zero exit is a failure with stderr captured.
package diskimage

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/webauthnai/DogTagClient-sub000/internal/common"
	"github.com/webauthnai/DogTagClient-sub000/internal/logging"
)

// Defaults for the utility contract.
const (
	DefaultBinary    = "hdiutil"
	DefaultMountRoot = "/Volumes/"

	// DefaultTimeout bounds every utility invocation. The utility can
	// hang on damaged images; without a bound the calling task would
	// block indefinitely.
	DefaultTimeout = 30 * time.Second

	encryptionMarker = "Encrypted: true"
)

// Util is the process contract consumed by the provisioner.
type Util interface {
	// Create allocates a new volume at path. A non-empty passphrase
	// produces an encrypted volume.
	Create(ctx context.Context, path string, sizeMB int, fsHint, volumeName string, passphrase []byte) error

	// Mount attaches the volume and returns its mount path.
	Mount(ctx context.Context, path string, passphrase []byte) (string, error)

	// Unmount detaches a mounted volume by mount path.
	Unmount(ctx context.Context, mountPath string) error

	// Inspect reports whether the volume at path is encrypted, without
	// mounting it.
	Inspect(ctx context.Context, path string) (encrypted bool, err error)
}

// CLIUtil shells out to an hdiutil-compatible binary.
type CLIUtil struct {
	bin       string
	mountRoot string
	timeout   time.Duration
	log       logging.Logger
}

var _ Util = (*CLIUtil)(nil)

// NewCLIUtil builds a runner for the given binary. Empty arguments fall
// back to the package defaults.
func NewCLIUtil(bin, mountRoot string, timeout time.Duration, log logging.Logger) *CLIUtil {
	if bin == "" {
		bin = DefaultBinary
	}
	if mountRoot == "" {
		mountRoot = DefaultMountRoot
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &CLIUtil{bin: bin, mountRoot: mountRoot, timeout: timeout, log: log}
}

// run executes one utility invocation under the configured timeout and
// returns its stdout. On non-zero exit the returned error carries the
// captured stderr.
func (u *CLIUtil) run(ctx context.Context, stdin []byte, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, u.bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	u.log.Debug(ctx, "invoking disk utility", "bin", u.bin, "args", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %v (stderr: %s)",
			u.bin, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (u *CLIUtil) Create(ctx context.Context, path string, sizeMB int, fsHint, volumeName string, passphrase []byte) error {
	args := []string{"create", "-size", strconv.Itoa(sizeMB) + "m"}
	if fsHint != "" {
		args = append(args, "-fs", fsHint)
	}
	if volumeName != "" {
		args = append(args, "-volname", volumeName)
	}
	var stdin []byte
	if len(passphrase) > 0 {
		args = append(args, "-encryption", "-stdinpass")
		stdin = passphrase
	}
	args = append(args, path)

	if _, err := u.run(ctx, stdin, args...); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCreationFailed, err)
	}
	return nil
}

func (u *CLIUtil) Mount(ctx context.Context, path string, passphrase []byte) (string, error) {
	args := []string{"attach", path}
	var stdin []byte
	if len(passphrase) > 0 {
		args = append(args, "-stdinpass")
		stdin = passphrase
	}

	out, err := u.run(ctx, stdin, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrMountFailed, err)
	}

	mountPath, ok := ParseMountPath(out, u.mountRoot)
	if !ok {
		return "", fmt.Errorf("%w: no mount path under %s in utility output", common.ErrMountFailed, u.mountRoot)
	}
	return mountPath, nil
}

func (u *CLIUtil) Unmount(ctx context.Context, mountPath string) error {
	if _, err := u.run(ctx, nil, "detach", mountPath); err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnmountFailed, err)
	}
	return nil
}

func (u *CLIUtil) Inspect(ctx context.Context, path string) (bool, error) {
	out, err := u.run(ctx, nil, "imageinfo", path)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, encryptionMarker), nil
}

// ParseMountPath scans utility stdout line by line for the first
// whitespace-separated token under mountRoot. Attach output interleaves
// device nodes and partition types with the final mount point, so every
// field of every line is considered.
func ParseMountPath(out, mountRoot string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		for _, field := range strings.Fields(line) {
			if strings.HasPrefix(field, mountRoot) {
				return field, true
			}
		}
	}
	return "", false
}
