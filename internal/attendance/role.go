package attendance

import "strings"

// Role is a prefect rank tier.
type Role string

const (
	RoleHead            Role = "Head"
	RoleDeputy          Role = "Deputy"
	RoleSeniorExecutive Role = "Senior Executive"
	RoleExecutive       Role = "Executive"
	RoleSuperSenior     Role = "Super Senior"
	RoleSenior          Role = "Senior"
	RoleJunior          Role = "Junior"
	RoleSub             Role = "Sub"
	RoleApprentice      Role = "Apprentice"
)

// Roles lists every tier, most senior first.
var Roles = []Role{
	RoleHead,
	RoleDeputy,
	RoleSeniorExecutive,
	RoleExecutive,
	RoleSuperSenior,
	RoleSenior,
	RoleJunior,
	RoleSub,
	RoleApprentice,
}

// ParseRole accepts the short form ("Senior Executive") and the long form used
// by the old basic form ("Senior Executive Prefect"), case-insensitively.
func ParseRole(s string) (Role, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	lower = strings.TrimSuffix(lower, " prefect")
	for _, r := range Roles {
		if strings.ToLower(string(r)) == lower {
			return r, true
		}
	}
	return "", false
}

// Rank is the seniority index (0 = Head), or -1 for an unknown role.
func (r Role) Rank() int {
	for i, v := range Roles {
		if v == r {
			return i
		}
	}
	return -1
}

func (r Role) Valid() bool { return r.Rank() >= 0 }

// LongName is the "X Prefect" label printed on badges and exports.
func (r Role) LongName() string { return string(r) + " Prefect" }
