package main

import "context"

func main() {
	app := mustBootstrapRegAPI()
	defer app.Close()

	if err := runRegAPI(app.ctx, app.opts, app.deps); err != nil && err != context.Canceled {
		panic(err)
	}
}
