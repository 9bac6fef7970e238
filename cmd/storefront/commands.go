package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/app"
	"github.com/fjod/go_cart/storefront/internal/client"
	"github.com/fjod/go_cart/storefront/internal/reconcile"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/urfave/cli/v2"
)

func cartCommand() *cli.Command {
	return &cli.Command{
		Name:  "cart",
		Usage: "inspect and edit the cart",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the cart",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "refresh", Usage: "fetch the server cart first when signed in"},
				},
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						if c.Bool("refresh") {
							if err := a.Syncer.FetchRemoteCart(c.Context); err != nil {
								return err
							}
						}
						printCart(c.App.Writer, a.Store)
						return nil
					})
				},
			},
			{
				Name:      "add",
				Usage:     "add a product to the cart",
				ArgsUsage: "<product-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "qty", Aliases: []string{"q"}, Value: 1},
				},
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("product id is required", 2)
					}
					return withApp(c, func(a *app.App) error {
						m, err := a.AddToCart(c.Context, id, c.Int("qty"))
						if err != nil {
							return err
						}
						printMutation(c.App.Writer, m)
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "remove a product from the cart",
				ArgsUsage: "<product-id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					return withApp(c, func(a *app.App) error {
						if !a.RemoveFromCart(id) {
							fmt.Fprintf(c.App.Writer, "%s is not in the cart\n", id)
						}
						return nil
					})
				},
			},
			{
				Name:      "set",
				Usage:     "set the quantity of a cart line",
				ArgsUsage: "<product-id> <quantity>",
				Action: func(c *cli.Context) error {
					qty, err := strconv.Atoi(c.Args().Get(1))
					if err != nil {
						return cli.Exit("quantity must be a number", 2)
					}
					id := c.Args().First()
					return withApp(c, func(a *app.App) error {
						m := a.SetQuantity(id, qty)
						if !m.Applied {
							fmt.Fprintf(c.App.Writer, "%s is not in the cart\n", id)
							return nil
						}
						printMutation(c.App.Writer, m)
						return nil
					})
				},
			},
			{
				Name:  "clear",
				Usage: "empty the cart",
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						a.ClearCart()
						return nil
					})
				},
			},
			{
				Name:  "validate",
				Usage: "check cart stock against the latest catalog",
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						res, err := a.Reconcile(c.Context)
						if err != nil {
							return err
						}
						if res.State == reconcile.Skip {
							fmt.Fprintf(c.App.Writer, "skipped: %s\n", res.Reason)
							return nil
						}
						for _, n := range res.Notices {
							fmt.Fprintln(c.App.Writer, n.Message)
						}
						printCart(c.App.Writer, a.Store)
						return nil
					})
				},
			},
		},
	}
}

func productsCommand() *cli.Command {
	return &cli.Command{
		Name:  "products",
		Usage: "list the catalog",
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				if err := a.Catalog.Refresh(c.Context); err != nil {
					return err
				}
				for _, p := range a.Catalog.Current().Products {
					fmt.Fprintf(c.App.Writer, "%-26s %-30s %10s  stock %d\n", p.ID, p.Name, p.Price.StringFixed(2), p.AvailableStock())
				}
				return nil
			})
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in with an API token and merge the guest cart",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Required: true, EnvVars: []string{"STOREFRONT_TOKEN"}},
			&cli.StringFlag{Name: "user-id"},
			&cli.StringFlag{Name: "name"},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				user := session.User{ID: c.String("user-id"), Name: c.String("name"), Token: c.String("token")}
				return a.Login(c.Context, user)
			})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "sign out and start a fresh guest cart",
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				a.Logout(c.Context)
				return nil
			})
		},
	}
}

func checkoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "checkout",
		Usage: "place an order for the cart",
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				receipt, err := a.Checkout.PlaceOrder(c.Context)
				if err != nil {
					return cli.Exit(describeOrderError(err), 1)
				}
				if skipped := receipt.Invalid + receipt.Unavailable; skipped > 0 {
					fmt.Fprintf(c.App.Writer, "%d items were removed from your order\n", skipped)
				}
				fmt.Fprintf(c.App.Writer, "Order %s placed, total %s\n",
					receipt.Confirmation.ID, receipt.Order.TotalPrice.StringFixed(2))
				return nil
			})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "keep the catalog fresh and report stock changes until interrupted",
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				return a.Watch(c.Context)
			})
		},
	}
}

func describeOrderError(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && len(apiErr.Fields) > 0:
		return "Validation error: " + apiErr.Error()
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, client.ErrCircuitOpen):
		return "The shop is unavailable right now. Please try again later."
	default:
		return "Failed to place order: " + err.Error()
	}
}

func printMutation(w io.Writer, m store.Mutation) {
	if !m.Applied {
		fmt.Fprintln(w, "Nothing changed, quantity must be at least 1.")
		return
	}
	if !m.Satisfied {
		fmt.Fprintf(w, "Only %d of %s available, quantity adjusted.\n", m.Item.Stock, m.Item.Name)
	}
	fmt.Fprintf(w, "%s x%d\n", m.Item.Name, m.Item.Quantity)
}

func printCart(w io.Writer, s *store.Store) {
	cart := s.Snapshot()
	if len(cart.Items) == 0 {
		fmt.Fprintln(w, "Your cart is empty.")
		return
	}
	for _, item := range cart.Items {
		status := ""
		if item.Unavailable {
			status = " (unavailable)"
		}
		fmt.Fprintf(w, "%-26s %-30s %3d x %8s = %9s%s\n",
			item.ID, item.Name, item.Quantity, item.Price.StringFixed(2), item.LineTotal().StringFixed(2), status)
	}
	fmt.Fprintf(w, "Subtotal: %s\n", cart.Subtotal().StringFixed(2))
}
