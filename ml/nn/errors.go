package nn

import "fmt"

func errNoForward(name string) error {
	return fmt.Errorf("%s: backward called before forward", name)
}
