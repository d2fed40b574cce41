package domain

import "strings"

// Driver describes how clients reach a database engine.
type Driver struct {
	Name  string
	Ports []int
}

var drivers = map[string]Driver{
	"mysql":         {Name: "mysql", Ports: []int{3306}},
	"mysql_percona": {Name: "mysql_percona", Ports: []int{3306}},
	"mongodb":       {Name: "mongodb", Ports: []int{27017}},
	"redis":         {Name: "redis", Ports: []int{6379, 26379}},
}

// DriverFor returns the driver for an engine type. Unknown engines get a
// driver with no ports.
func DriverFor(engineType string) Driver {
	key := strings.ToLower(strings.TrimSpace(engineType))
	if d, ok := drivers[key]; ok {
		ports := make([]int, len(d.Ports))
		copy(ports, d.Ports)
		return Driver{Name: d.Name, Ports: ports}
	}
	return Driver{Name: key}
}
