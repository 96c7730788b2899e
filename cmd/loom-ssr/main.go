// Command loom-ssr renders a small interactive component server-side and
// prints the resulting markup. It exercises the public API end to end:
// models drive patch streams, the compiler builds against the string
// renderer, and the component handle tears everything down.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-loom/loom/pkg/backend"
	"github.com/go-loom/loom/pkg/backend/ssr"
	"github.com/go-loom/loom/pkg/channel"
	"github.com/go-loom/loom/pkg/component"
	"github.com/go-loom/loom/pkg/patch"
	"github.com/go-loom/loom/pkg/style"
	"github.com/go-loom/loom/pkg/view"
)

const stylesheet = `
classes:
  app:
    attributes:
      role: main
    styles:
      font-family: sans-serif
  item:
    styles:
      margin: 2px
`

func todoItem(text string) *view.Builder {
	return view.El("li").Class("item").SetText(text)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "loom-ssr:", err)
		os.Exit(1)
	}
}

func run() error {
	sheet, err := style.Parse([]byte(stylesheet))
	if err != nil {
		return err
	}

	todos := channel.NewListPatchModel[*view.Builder]()
	count := channel.NewModel(0)

	clickSink, clicks := channel.New[backend.Event](channel.Buffered(4))
	countLabels := channel.Map(context.Background(), count.Observe(), func(n int) string {
		return strconv.Itoa(n) + " items"
	})

	app := view.El("div").
		Class("app").
		Append(
			view.El("h1").SetText("Todos"),
			view.El("p").TextNowLater("0 items", countLabels),
			view.El("ul").PatchChildren(todos.Observe()),
			view.El("button").SetText("add").On("click", clickSink),
		)

	c := component.New(app).WithLogic(func(ctx context.Context) error {
		for {
			if _, err := clicks.Next(ctx); err != nil {
				return err
			}
			n := count.Get() + 1
			if err := todos.Patch(ctx, patch.Push(todoItem(fmt.Sprintf("todo #%d", n)))); err != nil {
				return err
			}
			if err := count.Set(ctx, n); err != nil {
				return err
			}
		}
	})

	vctx := view.NewContext(ssr.New())
	vctx.Styles = sheet
	h, err := c.Build(vctx)
	if err != nil {
		return err
	}
	defer h.Drop()

	// Drive the component the way a platform would: fire events on the
	// button node and wait for the resulting state to land.
	button := findByTag(h.View(), "button")
	for i := 0; i < 3; i++ {
		button.Fire("click", backend.Event{Kind: backend.KindPointer})
	}
	root := h.View().Node()
	if err := waitFor(func() bool {
		return strings.Contains(ssr.Render(root), "todo #3")
	}); err != nil {
		return err
	}

	fmt.Println(ssr.Render(root))
	return nil
}

func findByTag(v *view.View, tag string) *ssr.Node {
	if v.Tag() == tag {
		return v.Node().(*ssr.Node)
	}
	for i := 0; i < v.ChildCount(); i++ {
		if n := findByTag(v.ChildAt(i), tag); n != nil {
			return n
		}
	}
	return nil
}

func waitFor(cond func() bool) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for updates to land")
}
