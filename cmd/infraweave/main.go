package main

import (
	_ "github.com/mattn/go-sqlite3"

	"github.com/chiquitav2/infraweave/cmd/infraweave/cmd"
)

func main() {
	cmd.Execute()
}
