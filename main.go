package main

import "github.com/tianzhicdev/dogetionary-sub008/cmd"

// @title           Clip Curator Backend API
// @version         1.0
// @description     Batch ingestion and retrieval of vocabulary video clips
// @host            localhost:8080
// @BasePath        /
// @schemes         http https
func main() {
	cmd.Execute()
}
