package command

import "strings"

// IsStaff reports whether any of the invoker's roles is on the staff allow-list.
// An empty allow-list authorizes nobody.
func IsStaff(invokerRoles, staffRoles []string) bool {
	for _, staff := range staffRoles {
		staff = strings.TrimSpace(staff)
		if staff == "" {
			continue
		}
		for _, r := range invokerRoles {
			if r == staff {
				return true
			}
		}
	}
	return false
}
