package fingerprint

import (
	"errors"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/afero"
)

var errSignalUnavailable = errors.New("signal unavailable")

// Signal 一项持久的机器特征
type Signal interface {
	Name() string
	Value() (string, error)
}

// CommandRunner runs a system query and returns its output.
type CommandRunner func(name string, args ...string) (string, error)

func execRunner(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DefaultSignals 顺序与签发方已发出的激活码保持一致：机器 ID、主网卡 MAC、主机名
func DefaultSignals() []Signal {
	return []Signal{
		MachineID(afero.NewOsFs(), execRunner, runtime.GOOS),
		PrimaryMAC(net.Interfaces),
		Hostname(os.Hostname),
	}
}

type machineIDSignal struct {
	fs   afero.Fs
	run  CommandRunner
	goos string
}

// MachineID reads the platform machine identifier.
func MachineID(fs afero.Fs, run CommandRunner, goos string) Signal {
	if run == nil {
		run = execRunner
	}
	return &machineIDSignal{fs: fs, run: run, goos: goos}
}

func (s *machineIDSignal) Name() string { return "machine_id" }

func (s *machineIDSignal) Value() (string, error) {
	switch s.goos {
	case "linux":
		return s.firstFile("/etc/machine-id", "/var/lib/dbus/machine-id")
	case "darwin":
		if v, err := s.firstFile("/etc/hostid"); err == nil {
			return v, nil
		}
		out, err := s.run("ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
		if err != nil {
			return "", err
		}
		return parseIORegUUID(out)
	case "windows":
		if out, err := s.run("wmic", "csproduct", "get", "UUID"); err == nil {
			if v, err := parseWMICUUID(out); err == nil {
				return v, nil
			}
		}
		out, err := s.run("reg", "query", `HKLM\SOFTWARE\Microsoft\Cryptography`, "/v", "MachineGuid")
		if err != nil {
			return "", err
		}
		return parseRegValue(out, "MachineGuid")
	default:
		return "", errSignalUnavailable
	}
}

func (s *machineIDSignal) firstFile(paths ...string) (string, error) {
	for _, p := range paths {
		b, err := afero.ReadFile(s.fs, p)
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(string(b)); v != "" {
			return v, nil
		}
	}
	return "", errSignalUnavailable
}

func parseIORegUUID(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "IOPlatformUUID") {
			continue
		}
		parts := strings.Split(line, `"`)
		if len(parts) >= 4 {
			if v := strings.TrimSpace(parts[3]); v != "" {
				return v, nil
			}
		}
	}
	return "", errSignalUnavailable
}

func parseWMICUUID(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "UUID") {
			continue
		}
		return line, nil
	}
	return "", errSignalUnavailable
}

func parseRegValue(out, name string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && strings.EqualFold(fields[0], name) {
			return fields[len(fields)-1], nil
		}
	}
	return "", errSignalUnavailable
}

type macSignal struct {
	interfaces func() ([]net.Interface, error)
}

// PrimaryMAC uses the first non-loopback interface, in index order, that has
// a hardware address. An all-zero address still counts.
func PrimaryMAC(interfaces func() ([]net.Interface, error)) Signal {
	return &macSignal{interfaces: interfaces}
}

func (s *macSignal) Name() string { return "primary_mac" }

func (s *macSignal) Value() (string, error) {
	ifaces, err := s.interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String(), nil
	}
	return "", errSignalUnavailable
}

type hostnameSignal struct {
	hostname func() (string, error)
}

// Hostname reads the machine host name.
func Hostname(hostname func() (string, error)) Signal {
	return &hostnameSignal{hostname: hostname}
}

func (s *hostnameSignal) Name() string { return "hostname" }

func (s *hostnameSignal) Value() (string, error) {
	hn, err := s.hostname()
	if err != nil {
		return "", err
	}
	if hn == "" {
		return "", errSignalUnavailable
	}
	return hn, nil
}

// Static is a fixed signal, useful for containers that inject a stable id.
func Static(name, value string) Signal {
	return staticSignal{name: name, value: value}
}

type staticSignal struct {
	name, value string
}

func (s staticSignal) Name() string { return s.name }

func (s staticSignal) Value() (string, error) {
	if s.value == "" {
		return "", errSignalUnavailable
	}
	return s.value, nil
}
