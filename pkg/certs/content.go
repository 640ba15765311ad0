package certs

// EnvironmentContent maps environment names to the qualifying records found
// in their archives. Scoped to one policy during one scan pass.
type EnvironmentContent map[string][]Record
