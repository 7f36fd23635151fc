package daemon

import (
	"regexp"
	"runtime"
	"strconv"

	"gitlab.com/vulnscan/vscan"
)

// FindEngine returns the default launcher and artifact for the engine on this OS
func FindEngine() (string, string) {
	switch runtime.GOOS {
	case "windows":
		return "java", "C:\\Program Files\\ZAP\\Zed Attack Proxy\\zap-2.16.0.jar"
	case "darwin":
		return "java", "/Applications/ZAP.app/Contents/Java/zap-2.16.0.jar"
	case "linux":
		return "java", "/opt/zaproxy/zap-2.16.0.jar"
	}
	return "", ""
}

// ListProcesses returns the command printing one "<pid> <command line>" per process on this OS
func ListProcesses() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"powershell", "-NoProfile", "-NonInteractive", "-Command",
			"Get-CimInstance Win32_Process | ForEach-Object { '{0} {1}' -f $_.ProcessId, $_.CommandLine }"}
	case "darwin", "linux":
		return []string{"ps", "-ww", "-eo", "pid=,args="}
	}
	return []string{""}
}

// MatchPattern returns the command line regexp identifying a prior instance of the
// engine described by cfg. Unless overridden it is the artifact started as a daemon
// on the configured port, so only the same engine is ever matched. Empty disables
// prior instance termination.
func MatchPattern(cfg *vscan.EngineConfig) string {
	if cfg.ProcessMatch != "" {
		return cfg.ProcessMatch
	}
	if cfg.Artifact == "" {
		return ""
	}
	pattern := regexp.QuoteMeta(cfg.Artifact) + `.*\s-daemon(\s.*)?\s-port\s+` + strconv.Itoa(cfg.Port) + `(\s|$)`
	if runtime.GOOS == "windows" {
		pattern = "(?i)" + pattern
	}
	return pattern
}

// Args for starting the engine as a local daemon with api access limited to loopback
func Args(cfg *vscan.EngineConfig, stateDir string) []string {
	args := make([]string, 0)
	if cfg.Command != "" {
		args = append(args, "-jar", cfg.Artifact)
	}
	return append(args,
		"-daemon",
		"-host", cfg.Host,
		"-port", strconv.Itoa(cfg.Port),
		"-dir", stateDir,
		"-config", "api.disablekey=true",
		"-config", "api.addrs.addr.name="+cfg.Host,
		"-config", "api.addrs.addr.regex=false",
		"-config", "scanner.alertThreshold="+cfg.AlertThreshold,
		"-config", "scanner.maxAlertsPerRule="+strconv.Itoa(cfg.MaxAlertsPerRule),
		"-silent",
	)
}
