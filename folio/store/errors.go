package store

import "fmt"

func errDuplicate(resource, id string) error {
	return fmt.Errorf("memory store: %s %s already exists", resource, id)
}

func errMissing(resource, id string) error {
	return fmt.Errorf("memory store: %s %s does not exist", resource, id)
}
