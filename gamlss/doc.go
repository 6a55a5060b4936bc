/*
Package gamlss fits regression models for responses on the open unit
interval, in which both the location (mu) and the shape (sigma) of the
response distribution depend on covariates, in the manner of generalized
additive models for location, scale and shape.

The supported response distributions are the Beta, Simplex, Kumaraswamy,
unit Weibull and reflected unit Burr XII families.  The linear predictor
for mu may include a random intercept for the levels of a grouping factor,
estimated by penalized likelihood.

The data are provided to the models using statmodel.Dataset.
*/
package gamlss
