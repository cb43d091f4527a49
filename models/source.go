package models

import "fmt"

// SourceDatabase is one operational database that feeds resources.
type SourceDatabase struct {
	Name             string `yaml:"name"`
	ConnectionString string `yaml:"connectionString"`
}

// String never includes the connection string since it usually carries credentials.
func (s SourceDatabase) String() string {
	return fmt.Sprintf("name=%s, connection_string_set=%v", s.Name, s.ConnectionString != "")
}
