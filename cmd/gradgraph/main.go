// Package main provides the gradgraph CLI.
//
// Usage:
//
//	gradgraph train   [flags]   train a classifier and save it
//	gradgraph predict [flags]   classify a dataset with a saved graph
//	gradgraph inspect FILE      print the header of a saved graph
//	gradgraph export  [flags]   convert a saved graph to SafeTensors
//	gradgraph version           show version
package main

import (
	"fmt"
	"log"
	"os"
)

const version = "v0.1.0"

func main() {
	log.SetFlags(0)
	log.SetPrefix("gradgraph: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "train":
		err = runTrain(args)
	case "predict":
		err = runPredict(args)
	case "inspect":
		err = runInspect(args)
	case "export":
		err = runExport(args)
	case "version":
		fmt.Printf("gradgraph %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		log.Printf("unknown command %q", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "gradgraph %s - reverse-mode autodiff graphs for classification\n\n", version)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  train      Train a classifier and save it")
	fmt.Fprintln(os.Stderr, "  predict    Classify a dataset with a saved graph")
	fmt.Fprintln(os.Stderr, "  inspect    Print the header of a saved graph")
	fmt.Fprintln(os.Stderr, "  export     Convert a saved graph to SafeTensors")
	fmt.Fprintln(os.Stderr, "  version    Show version")
	fmt.Fprintln(os.Stderr, "\nRun 'gradgraph COMMAND -h' for command flags.")
}
