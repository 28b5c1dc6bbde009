// cmd/admin/main.go
package main

import "github.com/javajoker/sevenfour-backend/internal/cmd"

func main() {
	cmd.Execute()
}
