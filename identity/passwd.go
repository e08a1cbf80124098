package identity

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// readShellFromPasswd scans /etc/passwd for username's shell field. This
// exists only because the standard library's os/user does not expose the
// shell field on all build configurations (the cgo-less pure-Go resolver
// parses only uid/gid/name/home).
func readShellFromPasswd(username string) (string, error) {
	f, err := os.Open("/etc/passwd")
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			continue
		}
		if fields[0] == username {
			return fields[6], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("user %s not found in /etc/passwd", username)
}
